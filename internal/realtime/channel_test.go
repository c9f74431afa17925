package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/expo-client-core/internal/auth"
	"github.com/nerrad567/expo-client-core/internal/fakebackend"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type harness struct {
	backend *fakebackend.Server
	url     string
	token   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := fakebackend.New(fakebackend.Options{})
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(func() {
		backend.Close()
		ts.Close()
	})

	u, err := backend.AddUser(auth.User{Email: "att@expo.test"}, "secret1")
	require.NoError(t, err)
	token, err := backend.IssueToken(u.ID, time.Hour)
	require.NoError(t, err)

	return &harness{
		backend: backend,
		url:     "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		token:   token,
	}
}

func testOptions(url string) Options {
	return Options{
		URL:          url,
		Reconnect:    Backoff{Initial: 20 * time.Millisecond, Max: 100 * time.Millisecond},
		PingInterval: time.Second,
		PongTimeout:  time.Second,
	}
}

func (h *harness) channel(t *testing.T) *Channel {
	t.Helper()
	ch := NewChannel(testOptions(h.url))
	t.Cleanup(ch.Close)
	return ch
}

// stateRecorder collects transitions in delivery order.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func connected(t *testing.T, ch *Channel) {
	t.Helper()
	require.Eventually(t, func() bool { return ch.State() == Connected }, waitFor, tick)
}

func TestChannelOpenConnects(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)
	rec := &stateRecorder{}
	ch.OnStateChange(rec.record)

	assert.Equal(t, Disconnected, ch.State())
	ch.Open(h.token)
	connected(t, ch)

	require.Eventually(t, func() bool { return len(rec.get()) == 2 }, waitFor, tick)
	assert.Equal(t, []State{Connecting, Connected}, rec.get())
	assert.NoError(t, ch.LastError())
	require.Eventually(t, func() bool { return h.backend.Connections() == 1 }, waitFor, tick)
}

func TestChannelJoinRoomAndReceiveEvents(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)

	got := make(chan json.RawMessage, 4)
	ch.Subscribe(EventBoothAllocated, func(p json.RawMessage) { got <- p })

	ch.Open(h.token)
	connected(t, ch)

	require.NoError(t, ch.JoinRoom("expo-1"))
	require.NoError(t, ch.JoinRoom("expo-1"))
	assert.Equal(t, []string{"expo-1"}, ch.Rooms())
	require.Eventually(t, func() bool { return h.backend.RoomMembers("expo-1") == 1 }, waitFor, tick)

	assert.Zero(t, h.backend.Broadcast("expo-2", EventBoothAllocated, map[string]any{"booth": "B2"}))
	assert.Equal(t, 1, h.backend.Broadcast("expo-1", EventBoothAllocated, map[string]any{"booth": "A1", "n": 3}))

	select {
	case p := <-got:
		assert.JSONEq(t, `{"booth":"A1","n":3}`, string(p))
	case <-time.After(waitFor):
		t.Fatal("event not delivered")
	}
	select {
	case p := <-got:
		t.Fatalf("unexpected second delivery: %s", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelEventsKeepTransportOrder(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)

	var mu sync.Mutex
	var seen []int
	ch.Subscribe(EventNewMessage, func(p json.RawMessage) {
		var n int
		if json.Unmarshal(p, &n) == nil {
			mu.Lock()
			seen = append(seen, n)
			mu.Unlock()
		}
	})

	ch.Open(h.token)
	connected(t, ch)
	require.Eventually(t, func() bool { return h.backend.Connections() == 1 }, waitFor, tick)

	for i := 0; i < 20; i++ {
		h.backend.Broadcast("", EventNewMessage, i)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 20
	}, waitFor, tick)

	for i, n := range seen {
		assert.Equal(t, i, n)
	}
}

func TestChannelRoomOpsWithoutConnection(t *testing.T) {
	ch := NewChannel(testOptions("ws://127.0.0.1:1/ws"))
	defer ch.Close()

	assert.ErrorIs(t, ch.JoinRoom("expo-1"), ErrClosed)
	assert.ErrorIs(t, ch.JoinRoom(" "), ErrInvalidRoom)
	assert.NoError(t, ch.LeaveRoom("expo-1"), "leaving a room not joined is a no-op")

	ch.Open("tok")
	assert.ErrorIs(t, ch.JoinRoom("expo-1"), ErrNotConnected)
	require.Eventually(t, func() bool { return ch.LastError() != nil }, waitFor, tick)
	assert.ErrorIs(t, ch.LastError(), ErrDialFailed)
	assert.Empty(t, ch.Rooms())
}

func TestChannelCloseClearsRoomsKeepsSubscriptions(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)
	rec := &stateRecorder{}
	ch.OnStateChange(rec.record)
	ch.Subscribe(EventExpoUpdated, func(json.RawMessage) {})

	ch.Open(h.token)
	connected(t, ch)
	require.NoError(t, ch.JoinRoom("expo-1"))

	ch.Close()

	assert.Equal(t, Disconnected, ch.State())
	assert.Empty(t, ch.Rooms())
	assert.Equal(t, 1, ch.Subscriptions(EventExpoUpdated))
	require.Eventually(t, func() bool { return len(rec.get()) == 3 }, waitFor, tick)
	assert.Equal(t, []State{Connecting, Connected, Disconnected}, rec.get())
	require.Eventually(t, func() bool { return h.backend.Connections() == 0 }, waitFor, tick)

	ch.Close()
	assert.Equal(t, []State{Connecting, Connected, Disconnected}, rec.get(), "second Close is a no-op")
	assert.ErrorIs(t, ch.JoinRoom("expo-1"), ErrClosed)
}

func TestChannelShutdownDropsHandlers(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)
	var stale atomic.Int32
	ch.Subscribe(EventExpoCreated, func(json.RawMessage) { stale.Add(1) })
	ch.OnStateChange(func(State) { stale.Add(1) })

	ch.Open(h.token)
	connected(t, ch)
	require.Eventually(t, func() bool { return h.backend.Connections() == 1 }, waitFor, tick)

	ch.Shutdown()
	assert.Equal(t, Disconnected, ch.State())
	assert.Zero(t, ch.Subscriptions(EventExpoCreated))
	before := stale.Load()

	var fresh atomic.Int32
	ch.Subscribe(EventExpoCreated, func(json.RawMessage) { fresh.Add(1) })
	ch.Open(h.token)
	connected(t, ch)
	require.Eventually(t, func() bool { return h.backend.Connections() == 1 }, waitFor, tick)

	h.backend.Broadcast("", EventExpoCreated, nil)
	require.Eventually(t, func() bool { return fresh.Load() == 1 }, waitFor, tick)
	assert.Equal(t, before, stale.Load())
}

func TestChannelSubscriptionsResumeAfterReopen(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)
	var count atomic.Int32
	ch.Subscribe(EventExpoCreated, func(json.RawMessage) { count.Add(1) })

	ch.Open(h.token)
	connected(t, ch)
	ch.Close()

	ch.Open(h.token)
	connected(t, ch)
	require.Eventually(t, func() bool { return h.backend.Connections() == 1 }, waitFor, tick)

	h.backend.Broadcast("", EventExpoCreated, nil)
	require.Eventually(t, func() bool { return count.Load() == 1 }, waitFor, tick)
}

func TestChannelRejoinsRoomsAfterReconnect(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)
	rec := &stateRecorder{}
	ch.OnStateChange(rec.record)

	got := make(chan json.RawMessage, 1)
	ch.Subscribe(EventSessionUpdated, func(p json.RawMessage) { got <- p })

	ch.Open(h.token)
	connected(t, ch)
	require.NoError(t, ch.JoinRoom("expo-7"))
	require.Eventually(t, func() bool { return h.backend.RoomMembers("expo-7") == 1 }, waitFor, tick)

	h.backend.DropConnections()

	require.Eventually(t, func() bool {
		states := rec.get()
		return len(states) >= 5 && states[len(states)-1] == Connected
	}, waitFor, tick)
	assert.Equal(t, []State{Connecting, Connected, Disconnected, Connecting, Connected}, rec.get()[:5])
	assert.NoError(t, ch.LastError(), "cleared once reconnected")
	require.Eventually(t, func() bool {
		return h.backend.Connections() == 1 && h.backend.RoomMembers("expo-7") == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"expo-7"}, ch.Rooms())

	h.backend.Broadcast("expo-7", EventSessionUpdated, "s1")
	select {
	case p := <-got:
		assert.Equal(t, `"s1"`, string(p))
	case <-time.After(waitFor):
		t.Fatal("event after reconnect not delivered")
	}
}

func TestChannelLeaveRoom(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)
	ch.Open(h.token)
	connected(t, ch)

	require.NoError(t, ch.JoinRoom("expo-1"))
	require.NoError(t, ch.JoinRoom("expo-2"))
	require.Eventually(t, func() bool { return h.backend.RoomMembers("expo-2") == 1 }, waitFor, tick)

	require.NoError(t, ch.LeaveRoom("expo-1"))
	require.NoError(t, ch.LeaveRoom("expo-1"))
	assert.Equal(t, []string{"expo-2"}, ch.Rooms())
	require.Eventually(t, func() bool { return h.backend.RoomMembers("expo-1") == 0 }, waitFor, tick)
	assert.Equal(t, 1, h.backend.RoomMembers("expo-2"))
}

func TestChannelRejectedTokenStopsRetrying(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)

	ch.Open("not-a-valid-token")
	require.Eventually(t, func() bool { return ch.LastError() != nil }, waitFor, tick)

	assert.ErrorIs(t, ch.LastError(), ErrRejected)
	assert.ErrorIs(t, ch.LastError(), ErrDialFailed)
	assert.NotContains(t, ch.LastError().Error(), "not-a-valid-token")

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, h.backend.Calls(http.MethodGet, "/ws"))
	assert.Equal(t, Disconnected, ch.State())
}

func TestChannelGivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	opts := testOptions("ws" + strings.TrimPrefix(ts.URL, "http") + "/ws")
	opts.Reconnect.MaxAttempts = 3
	ch := NewChannel(opts)
	defer ch.Close()

	ch.Open("tok")
	require.Eventually(t, func() bool { return hits.Load() == 3 }, waitFor, tick)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, Disconnected, ch.State())
}

func TestChannelOpenReplacesConnection(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)

	ch.Open(h.token)
	connected(t, ch)
	require.NoError(t, ch.JoinRoom("expo-1"))

	ch.Open(h.token)
	connected(t, ch)

	assert.Empty(t, ch.Rooms(), "a new session starts without rooms")
	require.Eventually(t, func() bool { return h.backend.Connections() == 1 }, waitFor, tick)
}

func TestChannelCloseFromHandler(t *testing.T) {
	h := newHarness(t)
	ch := h.channel(t)
	ch.Subscribe(EventNewNotification, func(json.RawMessage) { ch.Close() })

	ch.Open(h.token)
	connected(t, ch)
	require.Eventually(t, func() bool { return h.backend.Connections() == 1 }, waitFor, tick)

	h.backend.Broadcast("", EventNewNotification, "bye")
	require.Eventually(t, func() bool { return ch.State() == Disconnected }, waitFor, tick)
	require.Eventually(t, func() bool { return h.backend.Connections() == 0 }, waitFor, tick)
}

type recordingTelemetry struct {
	mu     sync.Mutex
	states []string
}

func (r *recordingTelemetry) WriteConnectivity(state string, _ int) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
}

func TestChannelTelemetry(t *testing.T) {
	h := newHarness(t)
	tel := &recordingTelemetry{}
	opts := testOptions(h.url)
	opts.Telemetry = tel
	ch := NewChannel(opts)

	ch.Open(h.token)
	connected(t, ch)
	ch.Close()

	get := func() []string {
		tel.mu.Lock()
		defer tel.mu.Unlock()
		return append([]string(nil), tel.states...)
	}
	require.Eventually(t, func() bool { return len(get()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"connecting", "connected", "disconnected"}, get())
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	ch := NewChannel(Options{URL: "ws://x/ws"})
	assert.Equal(t, defaultPingInterval, ch.opts.PingInterval)
	assert.Equal(t, defaultPongTimeout, ch.opts.PongTimeout)
	assert.Equal(t, int64(defaultMaxMessageSize), ch.opts.MaxMessageSize)
	assert.Equal(t, time.Second, ch.opts.Reconnect.Initial)
}
