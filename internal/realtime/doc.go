// Package realtime maintains the push-event connection of an authenticated
// session.
//
// A Channel owns one websocket to the backend, authenticated by passing the
// session token as the "token" query parameter. Its connectivity follows an
// explicit transition table (see state.go):
//
//	disconnected --open--> connecting --connect--> connected
//	connecting --connect_error--> disconnected --retry--> connecting
//	connected --disconnect--> disconnected
//	any --close--> disconnected
//
// Consumers subscribe to named events and receive the raw JSON payload:
//
//	dispose := ch.Subscribe(realtime.EventBoothAllocated, func(p json.RawMessage) {
//		...
//	})
//	defer dispose()
//
// Registry is the generic name-to-handlers map behind subscriptions; the
// session package reuses it for its own observers. Relay mirrors a Channel
// onto MQTT for local tools.
package realtime
