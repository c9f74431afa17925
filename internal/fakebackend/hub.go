package fakebackend

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
)

// Wire message types.
const (
	wsTypeJoin  = "join-expo"
	wsTypeLeave = "leave-expo"
	wsTypeEvent = "event"
	wsTypeError = "error"
)

const (
	wsSendBufferSize = 64
	wsMaxMessageSize = 64 << 10
	wsPingInterval   = 30 * time.Second
	wsPongWait       = 40 * time.Second
	wsWriteWait      = 5 * time.Second
)

// wsMessage is the envelope for every frame in both directions.
type wsMessage struct {
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub tracks websocket clients and their expo rooms.
type Hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string

	mu    sync.RWMutex
	rooms map[string]struct{}
}

func newHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "user_id", c.userID, "clients", n)
}

// unregister removes c; only the caller that removes it closes send.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "user_id", c.userID, "clients", n)
	}
}

func (h *Hub) snapshot() []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) broadcast(room, event string, payload any) int {
	data, err := json.Marshal(wsMessage{
		Type:      wsTypeEvent,
		EventType: event,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("marshalling broadcast", "event", event, "error", err)
		return 0
	}

	sent := 0
	for _, c := range h.snapshot() {
		if room == "" || c.inRoom(room) {
			if c.trySend(data) {
				sent++
			}
		}
	}
	h.logger.Debug("broadcast sent", "room", room, "event", event, "recipients", sent)
	return sent
}

func (h *Hub) roomMembers(room string) int {
	n := 0
	for _, c := range h.snapshot() {
		if c.inRoom(room) {
			n++
		}
	}
	return n
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// dropAll closes the sockets without a close frame. The read pumps then
// unregister their clients.
func (h *Hub) dropAll() {
	for _, c := range h.snapshot() {
		c.conn.Close()
	}
}

// closeAll sends a close frame to every client and forgets them.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// handleWebSocket authenticates with the token query parameter, then upgrades.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		writeError(w, http.StatusUnauthorized, msgNoToken)
		return
	}
	claims, err := s.verifyToken(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgNotAuthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		userID: claims.Subject,
		rooms:  make(map[string]struct{}),
	}
	s.hub.register(c)

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	//nolint:errcheck // best-effort deadline
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		//nolint:errcheck // best-effort deadline
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		c.handleMessage(data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid JSON message")
		return
	}

	var room string
	if err := json.Unmarshal(msg.Payload, &room); err != nil || strings.TrimSpace(room) == "" {
		c.sendError("payload must be an expo id")
		return
	}

	switch msg.Type {
	case wsTypeJoin:
		c.mu.Lock()
		c.rooms[room] = struct{}{}
		c.mu.Unlock()
		c.hub.logger.Debug("client joined expo room", "user_id", c.userID, "room", room)
	case wsTypeLeave:
		c.mu.Lock()
		delete(c.rooms, room)
		c.mu.Unlock()
		c.hub.logger.Debug("client left expo room", "user_id", c.userID, "room", room)
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *wsClient) inRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *wsClient) sendError(message string) {
	data, err := json.Marshal(wsMessage{Type: wsTypeError, Payload: message})
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking; a full buffer drops the frame.
// Sending on a channel closed by unregister panics, which is recovered.
func (c *wsClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case c.send <- data:
		return true
	default:
		c.hub.logger.Warn("websocket send buffer full, dropping frame", "user_id", c.userID)
		return false
	}
}
