package fakebackend

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/expo-client-core/internal/auth"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds Serve's shutdown after ctx is cancelled.
const gracefulShutdownTimeout = 5 * time.Second

// Options configures a fixture Server. The zero value is usable.
type Options struct {
	Logger   *logging.Logger
	Secret   []byte           // HS256 key; random when empty
	TokenTTL time.Duration    // DefaultTokenTTL when zero
	Now      func() time.Time // time.Now when nil
}

type account struct {
	user         auth.User
	passwordHash string
}

type failure struct {
	status  int
	message string
	raw     string
}

// Server is an in-process stand-in for the expo backend.
// All methods are safe for concurrent use.
type Server struct {
	logger  *logging.Logger
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	hash    hashParams
	hub     *Hub
	handler http.Handler

	mu         sync.RWMutex
	accounts   map[string]*account // by id
	byEmail    map[string]string   // lower-cased email -> id
	revoked    map[string]struct{} // token jti
	failures   map[string][]failure
	calls      map[string]int
	requestIDs []string
	resets     []string
}

// New creates a fixture server with no accounts.
func New(opts Options) *Server {
	s := &Server{
		logger:   opts.Logger,
		secret:   opts.Secret,
		ttl:      opts.TokenTTL,
		now:      opts.Now,
		hash:     defaultHashParams,
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		revoked:  make(map[string]struct{}),
		failures: make(map[string][]failure),
		calls:    make(map[string]int),
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.logger = s.logger.With("component", "fakebackend")
	if len(s.secret) == 0 {
		s.secret = make([]byte, 32)
		//nolint:errcheck // crypto/rand.Read does not fail on supported platforms
		rand.Read(s.secret)
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.hub = newHub(s.logger)
	s.handler = s.buildRouter()
	return s
}

// Handler returns the HTTP handler serving /api/users/* and /ws.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("fixture backend listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// Close disconnects every websocket client.
func (s *Server) Close() {
	s.hub.closeAll()
}

// AddUser seeds an account and returns it with its assigned ID.
func (s *Server) AddUser(u auth.User, password string) (auth.User, error) {
	if u.Email == "" || password == "" {
		return auth.User{}, errors.New("email and password are required")
	}
	if u.Role == "" {
		u.Role = auth.RoleAttendee
	}
	if !u.Role.Valid() {
		return auth.User{}, fmt.Errorf("%w: %q", auth.ErrUnknownRole, u.Role)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt == nil {
		t := s.now().UTC()
		u.CreatedAt = &t
	}

	hash, err := hashPassword(password, s.hash)
	if err != nil {
		return auth.User{}, err
	}

	key := strings.ToLower(u.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[key]; exists {
		return auth.User{}, errors.New(msgUserExists)
	}
	s.accounts[u.ID] = &account{user: u, passwordHash: hash}
	s.byEmail[key] = u.ID
	return u, nil
}

// IssueToken signs a token for an existing account. A negative ttl yields
// a token that is already expired.
func (s *Server) IssueToken(userID string, ttl time.Duration) (string, error) {
	u, ok := s.account(userID)
	if !ok {
		return "", errors.New(msgUserNotFound)
	}
	return s.issueToken(&u, ttl)
}

// RevokeToken makes a previously issued token fail verification.
func (s *Server) RevokeToken(raw string) {
	claims, err := auth.InspectToken(raw)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.revoked[claims.ID] = struct{}{}
	s.mu.Unlock()
}

// FailNext makes the next request to method+path return status with
// {"error": message}. Calls queue up in order.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.queueFailure(method, path, failure{status: status, message: message})
}

// FailNextRaw is FailNext with a non-JSON body.
func (s *Server) FailNextRaw(method, path string, status int, body string) {
	s.queueFailure(method, path, failure{status: status, raw: body})
}

func (s *Server) queueFailure(method, path string, f failure) {
	key := method + " " + path
	s.mu.Lock()
	s.failures[key] = append(s.failures[key], f)
	s.mu.Unlock()
}

// Calls returns how many requests reached method+path.
func (s *Server) Calls(method, path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method+" "+path]
}

// RequestIDs returns the X-Request-ID of every request seen, in order.
func (s *Server) RequestIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.requestIDs...)
}

// ResetRequests returns the emails that received a password reset.
func (s *Server) ResetRequests() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.resets...)
}

// User returns the stored account.
func (s *Server) User(id string) (auth.User, bool) {
	return s.account(id)
}

// Broadcast sends a named event to every client in room, or to every
// client when room is empty. Returns the number of recipients.
func (s *Server) Broadcast(room, event string, payload any) int {
	return s.hub.broadcast(room, event, payload)
}

// RoomMembers returns how many connected clients have joined room.
func (s *Server) RoomMembers(room string) int {
	return s.hub.roomMembers(room)
}

// Connections returns the number of live websocket clients.
func (s *Server) Connections() int {
	return s.hub.clientCount()
}

// DropConnections closes every websocket abruptly, as a network failure would.
func (s *Server) DropConnections() {
	s.hub.dropAll()
}

func (s *Server) account(id string) (auth.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return auth.User{}, false
	}
	return *a.user.Clone(), true
}

func (s *Server) accountByEmail(email string) (*account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, false
	}
	a := *s.accounts[id]
	return &a, true
}
