package mqtt

import "strings"

// DefaultTopicPrefix is used when the config leaves topic_prefix empty.
const DefaultTopicPrefix = "expo"

// Control actions accepted on {prefix}/control/{action}.
const (
	ControlJoin  = "join"
	ControlLeave = "leave"
)

// Topics builds relay topic names under a configurable prefix.
//
//	topics := mqtt.NewTopics("expo")
//	topics.Event("booth-allocated") // "expo/events/booth-allocated"
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root segment.
func (t Topics) Prefix() string { return t.prefix }

// Event returns the topic a realtime event is republished on.
//
// Example: expo/events/new-message
func (t Topics) Event(name string) string {
	return t.prefix + "/events/" + name
}

// AllEvents matches every relayed event.
//
// Pattern: expo/events/+
func (t Topics) AllEvents() string {
	return t.prefix + "/events/+"
}

// Status returns the retained client status topic.
//
// Example: expo/status
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// Control returns the topic local tools publish room requests to.
//
// Example: expo/control/join
func (t Topics) Control(action string) string {
	return t.prefix + "/control/" + action
}

// AllControl matches every control action.
//
// Pattern: expo/control/+
func (t Topics) AllControl() string {
	return t.prefix + "/control/+"
}

// ControlAction extracts the action from a control topic, or "" when topic is
// not a control topic under this prefix.
func (t Topics) ControlAction(topic string) string {
	action, ok := strings.CutPrefix(topic, t.prefix+"/control/")
	if !ok || strings.Contains(action, "/") {
		return ""
	}
	return action
}
