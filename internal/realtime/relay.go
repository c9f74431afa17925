package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/mqtt"
)

// Publisher is the part of *mqtt.Client the relay uses.
type Publisher interface {
	Topics() mqtt.Topics
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishStatus(realtimeState string) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Relay mirrors a Channel onto MQTT: every event is republished under
// {prefix}/events/{name}, connectivity under {prefix}/status, and
// {prefix}/control/{join|leave} messages (payload: room id) drive the
// channel's room membership.
type Relay struct {
	channel *Channel
	pub     Publisher
	qos     byte
	logger  *logging.Logger

	mu        sync.Mutex
	disposers []func()
	started   bool
}

// NewRelay creates a stopped relay.
func NewRelay(ch *Channel, pub Publisher, qos byte, logger *logging.Logger) *Relay {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Relay{
		channel: ch,
		pub:     pub,
		qos:     qos,
		logger:  logger.With("component", "relay"),
	}
}

// Start subscribes to every named event, state changes and the control
// topics. Starting a started relay does nothing.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	topics := r.pub.Topics()
	if err := r.pub.Subscribe(topics.AllControl(), r.qos, r.handleControl); err != nil {
		return fmt.Errorf("subscribing to control topics: %w", err)
	}

	for _, name := range EventNames {
		topic := topics.Event(name)
		r.disposers = append(r.disposers, r.channel.Subscribe(name, func(payload json.RawMessage) {
			r.forward(topic, payload)
		}))
	}
	r.disposers = append(r.disposers, r.channel.OnStateChange(func(s State) {
		if err := r.pub.PublishStatus(s.String()); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			r.logger.Warn("publishing status failed", "state", s.String(), "error", err)
		}
	}))

	r.started = true
	r.logger.Info("relay started", "prefix", topics.Prefix())
	return nil
}

// Stop removes the relay's handlers and control subscription.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	for _, dispose := range r.disposers {
		dispose()
	}
	r.disposers = nil
	r.started = false

	if err := r.pub.Unsubscribe(r.pub.Topics().AllControl()); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		r.logger.Warn("unsubscribing control topics failed", "error", err)
	}
}

func (r *Relay) forward(topic string, payload json.RawMessage) {
	err := r.pub.Publish(topic, payload, r.qos, false)
	switch {
	case err == nil:
	case errors.Is(err, mqtt.ErrNotConnected):
		r.logger.Debug("broker offline, event not relayed", "topic", topic)
	default:
		r.logger.Warn("relaying event failed", "topic", topic, "error", err)
	}
}

func (r *Relay) handleControl(topic string, payload []byte) error {
	room := strings.TrimSpace(string(payload))
	switch action := r.pub.Topics().ControlAction(topic); action {
	case mqtt.ControlJoin:
		return r.channel.JoinRoom(room)
	case mqtt.ControlLeave:
		return r.channel.LeaveRoom(room)
	default:
		return fmt.Errorf("unknown control action %q", action)
	}
}
