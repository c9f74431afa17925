package realtime

// Server-pushed event names.
const (
	EventSessionUpdated           = "session-updated"
	EventAttendanceUpdated        = "attendance-updated"
	EventNewMessage               = "new-message"
	EventNewNotification          = "new-notification"
	EventExpoCreated              = "expo-created"
	EventUserRegistered           = "user-registered"
	EventAttendeeRegistered       = "attendee-registered"
	EventSessionBookmarked        = "session-bookmarked"
	EventApplicationStatusChanged = "application-status-changed"
	EventSessionRegistered        = "session-registered"
	EventExpoUpdated              = "expo-updated"
	EventBoothAllocated           = "booth-allocated"
)

// EventNames lists every event the platform pushes.
var EventNames = []string{
	EventSessionUpdated,
	EventAttendanceUpdated,
	EventNewMessage,
	EventNewNotification,
	EventExpoCreated,
	EventUserRegistered,
	EventAttendeeRegistered,
	EventSessionBookmarked,
	EventApplicationStatusChanged,
	EventSessionRegistered,
	EventExpoUpdated,
	EventBoothAllocated,
}

// Client-to-server message types.
const (
	msgJoinExpo  = "join-expo"
	msgLeaveExpo = "leave-expo"
	msgEvent     = "event"
)
