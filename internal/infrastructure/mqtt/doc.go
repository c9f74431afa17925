// Package mqtt connects the expo client to a local MQTT broker.
//
// The broker is an optional side channel: when mqtt.enabled is set, realtime
// events received from the platform are republished so other local tools
// (kiosk displays, badge printers) can react without holding a session.
//
// Topics, under the configured prefix (default "expo"):
//
//	expo/status               retained online/offline + realtime state, LWT
//	expo/events/{event}       one message per realtime event, payload verbatim
//	expo/control/{join|leave} room requests from local tools, payload is the room id
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Publish(topics.Event("new-message"), payload, 1, false)
//
// Subscriptions are tracked and restored after paho reconnects. Handlers are
// wrapped with panic recovery.
package mqtt
