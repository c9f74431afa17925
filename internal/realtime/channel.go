package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
)

const (
	defaultPingInterval     = 25 * time.Second
	defaultPongTimeout      = 20 * time.Second
	defaultMaxMessageSize   = 64 << 10
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 5 * time.Second

	stateKey = "state"
)

// Backoff is the reconnect schedule: Initial doubling up to Max.
// MaxAttempts 0 retries forever.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Delay returns the wait before retry number n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := b.Initial
	for i := 1; i < n && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}

// Telemetry receives connectivity transitions. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteConnectivity(state string, attempt int)
}

// Options configures a Channel.
type Options struct {
	URL            string
	Reconnect      Backoff
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	Dialer         *websocket.Dialer
	Logger         *logging.Logger
	Telemetry      Telemetry
}

// OptionsFromConfig converts the realtime config section.
func OptionsFromConfig(cfg config.RealtimeConfig) Options {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return Options{
		URL: cfg.URL,
		Reconnect: Backoff{
			Initial:     sec(cfg.Reconnect.InitialDelay),
			Max:         sec(cfg.Reconnect.MaxDelay),
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		PingInterval:   sec(cfg.PingInterval),
		PongTimeout:    sec(cfg.PongTimeout),
		MaxMessageSize: int64(cfg.MaxMessageSize),
	}
}

type stateChange struct {
	state   State
	attempt int
}

// Channel is the realtime connection of one authenticated session.
//
// Open starts a background loop that dials, serves frames and reconnects
// with backoff. Inbound events are dispatched from that loop, one at a
// time, in the order received. Close stops the loop and forgets rooms;
// event subscriptions survive Close and resume on the next Open.
//
// All methods are safe for concurrent use, including from handlers.
type Channel struct {
	opts   Options
	dialer *websocket.Dialer
	logger *logging.Logger
	events *Registry[json.RawMessage]
	states *Registry[State]

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped by Open and Close; stale loops compare against it
	active   bool
	conn     *websocket.Conn
	rooms    map[string]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	lastErr  error
	attempt  int
	pending  []stateChange
	draining bool

	writeMu   sync.Mutex
	callbacks atomic.Int32 // >0 while a handler or observer runs
}

// NewChannel creates a disconnected channel.
func NewChannel(opts Options) *Channel {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.Reconnect.Initial <= 0 {
		opts.Reconnect.Initial = time.Second
	}
	if opts.Reconnect.Max < opts.Reconnect.Initial {
		opts.Reconnect.Max = opts.Reconnect.Initial
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "realtime")

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}

	return &Channel{
		opts:   opts,
		dialer: dialer,
		logger: logger,
		events: NewRegistry[json.RawMessage](logger),
		states: NewRegistry[State](logger),
		rooms:  make(map[string]struct{}),
	}
}

// Open connects with token, replacing any existing connection.
func (c *Channel) Open(token string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	prevCancel, prevConn, prevDone := c.teardownLocked()
	gen := c.gen
	c.active = true
	c.cancel = cancel
	c.done = done
	c.lastErr = nil
	c.attempt = 0
	c.applyLocked(evOpen)
	c.mu.Unlock()

	c.release(prevCancel, prevConn, prevDone)
	c.flush()

	c.logger.Info("realtime channel opening", "url", c.opts.URL)
	go c.run(ctx, gen, token, done)
}

// Close disconnects, clears room memberships and stops reconnecting.
// Subscriptions are kept. Calling Close on a closed channel does nothing.
func (c *Channel) Close() {
	c.mu.Lock()
	if !c.active && c.conn == nil && c.state == Disconnected && len(c.rooms) == 0 {
		c.mu.Unlock()
		return
	}
	cancel, conn, done := c.teardownLocked()
	c.mu.Unlock()

	c.release(cancel, conn, done)
	c.flush()
	c.logger.Info("realtime channel closed")
}

// Shutdown closes the channel and then drops every event subscription and
// state handler. The channel may be reopened afterwards with fresh handlers.
func (c *Channel) Shutdown() {
	c.Close()
	c.events.DisposeAll()
	c.states.DisposeAll()
}

// teardownLocked detaches the running loop and returns what release must
// stop. Caller holds c.mu.
func (c *Channel) teardownLocked() (context.CancelFunc, *websocket.Conn, chan struct{}) {
	cancel, conn, done := c.cancel, c.conn, c.done
	c.gen++
	c.active = false
	c.cancel = nil
	c.conn = nil
	c.done = nil
	c.rooms = make(map[string]struct{})
	c.applyLocked(evClose)
	return cancel, conn, done
}

func (c *Channel) release(cancel context.CancelFunc, conn *websocket.Conn, done chan struct{}) {
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		//nolint:errcheck // best-effort close frame
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		conn.Close()
	}
	// A handler calling Close runs on the loop goroutine; waiting would deadlock.
	if done != nil && c.callbacks.Load() == 0 {
		<-done
	}
}

// State returns the current connectivity.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent connection failure, or nil.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Rooms returns the joined room ids in sorted order.
func (c *Channel) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Subscribe registers fn for a named event. The payload is the raw JSON
// the server sent. The returned disposer removes exactly this handler.
func (c *Channel) Subscribe(event string, fn func(payload json.RawMessage)) (dispose func()) {
	return c.events.Register(event, fn)
}

// Subscriptions returns how many handlers are registered for event.
func (c *Channel) Subscriptions(event string) int {
	return c.events.Count(event)
}

// OnStateChange registers fn to be told of every state transition, in order.
func (c *Channel) OnStateChange(fn func(State)) (dispose func()) {
	return c.states.Register(stateKey, fn)
}

// JoinRoom joins an expo room. Joining a joined room is a no-op.
// Memberships are re-sent after every reconnect.
func (c *Channel) JoinRoom(room string) error {
	if strings.TrimSpace(room) == "" {
		return ErrInvalidRoom
	}

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Connected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if _, ok := c.rooms[room]; ok {
		c.mu.Unlock()
		return nil
	}
	c.rooms[room] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if err := c.send(conn, msgJoinExpo, room); err != nil {
		c.logger.Warn("join not sent, will retry after reconnect", "room", room, "error", err)
	}
	return nil
}

// LeaveRoom leaves an expo room. Leaving a room not joined is a no-op.
func (c *Channel) LeaveRoom(room string) error {
	c.mu.Lock()
	if _, ok := c.rooms[room]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.rooms, room)
	var conn *websocket.Conn
	if c.state == Connected {
		conn = c.conn
	}
	c.mu.Unlock()

	if conn != nil {
		if err := c.send(conn, msgLeaveExpo, room); err != nil {
			c.logger.Warn("leave not sent", "room", room, "error", err)
		}
	}
	return nil
}

// run is the connection loop for one Open.
func (c *Channel) run(ctx context.Context, gen uint64, token string, done chan struct{}) {
	defer close(done)

	failures := 0
	for {
		conn, err := c.dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.fail(gen, evConnectError, err, failures)
			if errors.Is(err, ErrRejected) {
				return
			}
			if !c.backoff(ctx, gen, failures) {
				return
			}
			continue
		}

		if !c.attach(gen, conn) {
			conn.Close()
			return
		}
		failures = 0

		err = c.serve(gen, conn)
		c.detach(gen, conn)
		if ctx.Err() != nil {
			return
		}
		failures++
		c.fail(gen, evDisconnect, err, failures)
		if !c.backoff(ctx, gen, failures) {
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing url: %w", ErrDialFailed, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %w: handshake status %d", ErrDialFailed, ErrRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}
	return conn, nil
}

// attach installs conn as the live connection and re-joins rooms.
// It reports false when the loop has been superseded.
func (c *Channel) attach(gen uint64, conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.lastErr = nil
	c.attempt = 0
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()

	sort.Strings(rooms)
	for _, room := range rooms {
		if err := c.send(conn, msgJoinExpo, room); err != nil {
			c.logger.Warn("re-join failed", "room", room, "error", err)
		}
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.applyLocked(evConnect)
	c.mu.Unlock()
	c.flush()

	c.logger.Info("realtime channel connected", "rooms", len(rooms))
	return true
}

func (c *Channel) detach(gen uint64, conn *websocket.Conn) {
	c.mu.Lock()
	if c.gen == gen && c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// fail records err and applies a failure transition.
func (c *Channel) fail(gen uint64, t transition, err error, attempt int) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	c.attempt = attempt
	c.applyLocked(t)
	c.mu.Unlock()
	c.flush()

	c.logger.Warn("realtime channel "+t.String(), "attempt", attempt, "error", err)
}

// backoff sleeps before retry n and applies the retry transition.
// It reports false when the loop should stop.
func (c *Channel) backoff(ctx context.Context, gen uint64, n int) bool {
	if limit := c.opts.Reconnect.MaxAttempts; limit > 0 && n >= limit {
		c.logger.Error("realtime channel giving up", "attempts", n)
		return false
	}

	timer := time.NewTimer(c.opts.Reconnect.Delay(n))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.applyLocked(evRetry)
	c.mu.Unlock()
	c.flush()
	return true
}

// serve reads frames until the connection fails.
func (c *Channel) serve(gen uint64, conn *websocket.Conn) error {
	wait := c.opts.PingInterval + c.opts.PongTimeout
	conn.SetReadLimit(c.opts.MaxMessageSize)
	//nolint:errcheck // best-effort deadline
	conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	conn.SetPingHandler(func(data string) error {
		//nolint:errcheck // best-effort deadline
		conn.SetReadDeadline(time.Now().Add(wait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	stop := make(chan struct{})
	defer close(stop)
	go c.keepalive(conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		//nolint:errcheck // best-effort deadline
		conn.SetReadDeadline(time.Now().Add(wait))
		c.handleFrame(gen, data)
	}
}

func (c *Channel) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// inbound is a server frame.
type inbound struct {
	Type      string          `json:"type"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// outbound is a client frame.
type outbound struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

func (c *Channel) handleFrame(gen uint64, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("ignoring malformed frame", "error", err)
		return
	}
	if msg.Type != msgEvent || msg.EventType == "" {
		c.logger.Debug("ignoring frame", "type", msg.Type)
		return
	}

	c.mu.Lock()
	current := c.gen == gen
	c.mu.Unlock()
	if !current {
		return
	}

	c.callbacks.Add(1)
	n := c.events.Dispatch(msg.EventType, msg.Payload)
	c.callbacks.Add(-1)
	c.logger.Debug("event dispatched", "event", msg.EventType, "handlers", n)
}

func (c *Channel) send(conn *websocket.Conn, typ, room string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	//nolint:errcheck // write error reported below
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(outbound{Type: typ, Payload: room}); err != nil {
		return fmt.Errorf("sending %s: %w", typ, err)
	}
	return nil
}

// applyLocked moves the state machine and queues a notification.
// Caller holds c.mu and must call flush after unlocking.
func (c *Channel) applyLocked(t transition) {
	to, ok := next(c.state, t)
	if !ok {
		c.logger.Debug("ignoring transition", "from", c.state.String(), "event", t.String())
		return
	}
	if to == c.state {
		return
	}
	c.state = to
	c.pending = append(c.pending, stateChange{state: to, attempt: c.attempt})
}

// flush delivers queued state changes in order. Only one goroutine drains
// at a time; re-entrant calls from observers return immediately and their
// changes are delivered by the outer drain.
func (c *Channel) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.pending) > 0 {
		ch := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		if c.opts.Telemetry != nil {
			c.opts.Telemetry.WriteConnectivity(ch.state.String(), ch.attempt)
		}
		c.callbacks.Add(1)
		c.states.Dispatch(stateKey, ch.state)
		c.callbacks.Add(-1)

		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}
