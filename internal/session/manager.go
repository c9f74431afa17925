package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/expo-client-core/internal/apiclient"
	"github.com/nerrad567/expo-client-core/internal/auth"
	"github.com/nerrad567/expo-client-core/internal/credential"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
	"github.com/nerrad567/expo-client-core/internal/realtime"
)

// storeTimeout bounds credential store writes made outside a caller's context.
const storeTimeout = 5 * time.Second

const observerKey = "session"

// Operation names reported to telemetry.
const (
	OpBootstrap      = "bootstrap"
	OpLogin          = "login"
	OpRegister       = "register"
	OpLogout         = "logout"
	OpUpdateProfile  = "update_profile"
	OpChangePassword = "change_password"
	OpForgotPassword = "forgot_password"
	OpExpired        = "token_expired"
)

var errExpiredLocally = errors.New("token expired")

// API is the backend surface the manager uses. *apiclient.Client satisfies it.
type API interface {
	Profile(ctx context.Context, token string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (*apiclient.AuthResponse, error)
	Register(ctx context.Context, reg apiclient.Registration) (*apiclient.AuthResponse, error)
	UpdateProfile(ctx context.Context, token string, upd apiclient.ProfileUpdate) (*auth.User, error)
	ChangePassword(ctx context.Context, token, current, next string) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
}

// Realtime is the channel lifecycle the manager drives. *realtime.Channel
// satisfies it.
type Realtime interface {
	Open(token string)
	Close()
}

// Telemetry records authentication outcomes. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteAuthEvent(operation string, success bool)
}

// Deps are the collaborators of a Manager. API and Store are required.
type Deps struct {
	API       API
	Store     credential.Store
	Realtime  Realtime
	Telemetry Telemetry
	Logger    *logging.Logger
	Routes    auth.Routes
	Now       func() time.Time
}

// Manager owns the authenticated session: the current user, the bearer
// token and its persistence, and the realtime channel's lifecycle.
//
// Construct one per process with New and pass it to whatever needs it.
// All methods are safe for concurrent use. Observers are called without
// locks held, in transition order, and may call back into the Manager.
type Manager struct {
	api       API
	store     credential.Store
	rt        Realtime
	telemetry Telemetry
	logger    *logging.Logger
	routes    auth.Routes
	now       func() time.Time
	observers *realtime.Registry[Snapshot]

	bootOnce sync.Once
	bootSnap Snapshot

	// opMu serialises credential store writes with the state commit that
	// follows them.
	opMu sync.Mutex

	mu           sync.Mutex
	state        State
	user         *auth.User
	token        string
	errMsg       string
	inflight     int // profile and password operations
	bootstrapped bool
	gen          uint64 // bumped when a session ends; stale operations compare against it
	queue        []Snapshot
	draining     bool
}

// New creates an unauthenticated Manager. It panics if API or Store is nil.
func New(d Deps) *Manager {
	if d.API == nil || d.Store == nil {
		panic("session: New requires API and Store")
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Routes == (auth.Routes{}) {
		d.Routes = auth.DefaultRoutes()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	logger := d.Logger.With("component", "session")
	return &Manager{
		api:       d.API,
		store:     d.Store,
		rt:        d.Realtime,
		telemetry: d.Telemetry,
		logger:    logger,
		routes:    d.Routes,
		now:       d.Now,
		observers: realtime.NewRegistry[Snapshot](logger),
	}
}

// ============================================================================
// Observation
// ============================================================================

// Snapshot returns the current session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns a copy of the signed-in user, or nil.
func (m *Manager) User() *auth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user.Clone()
}

// Token returns the bearer token of the current session, or "".
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Subscribe registers fn to receive a Snapshot after every change. It is
// not called with the current state; use Snapshot for that. Once dispose
// returns, fn is not invoked again, but a delivery already running on
// another goroutine may still complete.
func (m *Manager) Subscribe(fn func(Snapshot)) (dispose func()) {
	return m.observers.Register(observerKey, fn)
}

// Guard decides whether a view at location, protected by required, may
// render. It returns a Pending decision until the stored session has been
// resolved and while a sign-in is in flight.
func (m *Manager) Guard(required auth.Requirement, location string) auth.Decision {
	s := m.Snapshot()
	if !s.Bootstrapped || s.State == Authenticating {
		return auth.Decision{Kind: auth.Pending}
	}
	return auth.Authorize(s.User, required, location, m.routes)
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:        m.state,
		User:         m.user.Clone(),
		Loading:      m.state == Authenticating || m.inflight > 0,
		Error:        m.errMsg,
		Bootstrapped: m.bootstrapped,
	}
}

// changedLocked queues the current snapshot for delivery. Caller holds
// m.mu and calls flush after unlocking.
func (m *Manager) changedLocked() {
	m.queue = append(m.queue, m.snapshotLocked())
}

// flush delivers queued snapshots in order, one drainer at a time.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		s := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.observers.Dispatch(observerKey, s)
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Manager) record(op string, success bool) {
	if m.telemetry != nil {
		m.telemetry.WriteAuthEvent(op, success)
	}
}

// ============================================================================
// Bootstrap
// ============================================================================

// Bootstrap resolves the persisted token into a session. It runs once;
// later calls return the first outcome.
//
// No stored token leaves the session unauthenticated. A stored token is
// checked against the profile endpoint: on success the session becomes
// authenticated and the realtime channel opens; on any failure the token
// is removed from the store, unless a later sign-in has replaced it.
func (m *Manager) Bootstrap(ctx context.Context) Snapshot {
	m.bootOnce.Do(func() {
		m.bootstrap(ctx)
		m.bootSnap = m.Snapshot()
	})
	return m.bootSnap
}

func (m *Manager) bootstrap(ctx context.Context) {
	token, err := m.store.Load(ctx)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		m.logger.Warn("reading stored token failed, starting signed out", "error", err)
	}
	if err != nil || token == "" {
		m.markBootstrapped()
		return
	}

	m.mu.Lock()
	if m.state != Unauthenticated {
		// A sign-in started before Bootstrap; it owns the session now.
		m.mu.Unlock()
		m.markBootstrapped()
		return
	}
	gen := m.gen
	m.state = Authenticating
	m.changedLocked()
	m.mu.Unlock()
	m.flush()

	var user *auth.User
	if auth.TokenExpired(token, m.now()) {
		err = errExpiredLocally
	} else {
		user, err = m.api.Profile(ctx, token)
	}

	if err != nil {
		m.logger.Info("stored token rejected", "error", err)
		m.record(OpBootstrap, false)

		// If the session ended meanwhile, a later sign-in may own the store.
		m.opMu.Lock()
		m.mu.Lock()
		current := m.gen == gen
		m.mu.Unlock()
		if current {
			m.clearStore()
		}
		m.mu.Lock()
		if current {
			m.state = Unauthenticated
			m.user = nil
			m.token = ""
		}
		m.bootstrapped = true
		m.changedLocked()
		m.mu.Unlock()
		m.opMu.Unlock()
		m.flush()
		return
	}

	m.mu.Lock()
	if m.gen != gen {
		m.bootstrapped = true
		m.changedLocked()
		m.mu.Unlock()
		m.flush()
		return
	}
	m.state = Authenticated
	m.user = user.Clone()
	m.token = token
	m.bootstrapped = true
	m.changedLocked()
	m.mu.Unlock()
	m.flush()

	m.logger.Info("session restored", "user_id", user.ID, "role", string(user.Role))
	m.record(OpBootstrap, true)
	m.openRealtime(gen, token)
}

func (m *Manager) markBootstrapped() {
	m.mu.Lock()
	if m.bootstrapped {
		m.mu.Unlock()
		return
	}
	m.bootstrapped = true
	m.changedLocked()
	m.mu.Unlock()
	m.flush()
}

// ============================================================================
// Sign-in
// ============================================================================

// Login signs in with email and password.
func (m *Manager) Login(ctx context.Context, email, password string) Result {
	return m.authenticate(ctx, OpLogin, func(ctx context.Context) (*apiclient.AuthResponse, error) {
		return m.api.Login(ctx, email, password)
	})
}

// Register creates an account and signs in as it.
func (m *Manager) Register(ctx context.Context, reg apiclient.Registration) Result {
	return m.authenticate(ctx, OpRegister, func(ctx context.Context) (*apiclient.AuthResponse, error) {
		return m.api.Register(ctx, reg)
	})
}

func (m *Manager) authenticate(ctx context.Context, op string, call func(context.Context) (*apiclient.AuthResponse, error)) Result {
	m.mu.Lock()
	switch m.state {
	case Authenticating:
		m.mu.Unlock()
		return failure(MsgInProgress)
	case Authenticated:
		m.mu.Unlock()
		return failure(MsgAlreadyAuthenticated)
	}
	gen := m.gen
	m.state = Authenticating
	m.errMsg = ""
	m.changedLocked()
	m.mu.Unlock()
	m.flush()

	resp, err := call(ctx)
	if err != nil {
		m.logger.Info(op+" failed", "status", apiclient.StatusOf(err), "error", err)
		return m.failAuth(op, gen, messageFor(err))
	}

	m.opMu.Lock()
	m.mu.Lock()
	stale := m.gen != gen
	m.mu.Unlock()
	if stale {
		m.opMu.Unlock()
		return failure(MsgCancelled)
	}
	if err := m.store.Save(ctx, resp.Token); err != nil {
		m.opMu.Unlock()
		m.logger.Error("persisting token failed", "error", err)
		return m.failAuth(op, gen, MsgGeneric)
	}
	m.mu.Lock()
	m.state = Authenticated
	m.user = resp.User.Clone()
	m.token = resp.Token
	m.bootstrapped = true
	m.changedLocked()
	m.mu.Unlock()
	m.opMu.Unlock()
	m.flush()

	m.logger.Info(op+" succeeded", "user_id", resp.User.ID, "role", string(resp.User.Role))
	m.record(op, true)
	m.openRealtime(gen, resp.Token)
	return Result{Success: true, User: resp.User.Clone()}
}

func (m *Manager) failAuth(op string, gen uint64, msg string) Result {
	m.record(op, false)
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return failure(MsgCancelled)
	}
	m.state = Unauthenticated
	m.errMsg = msg
	m.changedLocked()
	m.mu.Unlock()
	m.flush()
	return failure(msg)
}

// openRealtime opens the channel for the session of gen. If that session
// ended meanwhile, the channel is closed again.
func (m *Manager) openRealtime(gen uint64, token string) {
	if m.rt == nil || m.stale(gen) {
		return
	}
	m.rt.Open(token)

	if m.stale(gen) {
		m.rt.Close()
	}
}

// stale reports whether the session of gen has ended.
func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen != gen || m.state != Authenticated
}

// ============================================================================
// Sign-out
// ============================================================================

// Logout ends the session: the realtime channel is closed first, then the
// token, user and error are cleared. It makes no network call and is
// idempotent. Any in-flight operation's result is discarded.
func (m *Manager) Logout() {
	m.endSession("")
	m.record(OpLogout, true)
}

// endSession closes the channel, clears the store and resets the session,
// leaving errMsg as the visible error.
func (m *Manager) endSession(errMsg string) {
	m.mu.Lock()
	m.gen++
	m.mu.Unlock()

	if m.rt != nil {
		m.rt.Close()
	}

	m.opMu.Lock()
	m.clearStore()
	m.mu.Lock()
	changed := m.state != Unauthenticated || m.user != nil || m.token != "" ||
		m.errMsg != errMsg || m.inflight != 0
	m.state = Unauthenticated
	m.user = nil
	m.token = ""
	m.errMsg = errMsg
	m.inflight = 0
	if changed {
		m.changedLocked()
	}
	m.mu.Unlock()
	m.opMu.Unlock()
	m.flush()
}

// clearStore removes the persisted token. Caller holds opMu.
func (m *Manager) clearStore() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("clearing stored token failed", "error", err)
	}
}

// expire ends the session of gen after the backend rejected its token.
func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	current := m.gen == gen
	m.mu.Unlock()
	if !current {
		return
	}
	m.logger.Info("token rejected by backend, signing out")
	m.record(OpExpired, true)
	m.endSession(MsgSessionExpired)
}

// ============================================================================
// Account operations
// ============================================================================

// beginAuthed marks an authenticated operation as in flight.
func (m *Manager) beginAuthed() (token string, gen uint64, ok bool) {
	m.mu.Lock()
	if m.state != Authenticated {
		m.mu.Unlock()
		return "", 0, false
	}
	token, gen = m.token, m.gen
	m.inflight++
	m.changedLocked()
	m.mu.Unlock()
	m.flush()
	return token, gen, true
}

// endAuthed finishes an operation started with beginAuthed. apply, if not
// nil, runs under the lock when the session is still the same one.
func (m *Manager) endAuthed(gen uint64, apply func()) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.inflight--
	if apply != nil {
		apply()
	}
	m.changedLocked()
	m.mu.Unlock()
	m.flush()
}

// UpdateProfile changes profile fields of the signed-in user. The role is
// never changed client side. A 401 ends the session.
func (m *Manager) UpdateProfile(ctx context.Context, upd apiclient.ProfileUpdate) Result {
	if upd.IsEmpty() {
		return failure(MsgNothingToUpdate)
	}
	token, gen, ok := m.beginAuthed()
	if !ok {
		return failure(MsgNotAuthenticated)
	}

	updated, err := m.api.UpdateProfile(ctx, token, upd)
	if err != nil {
		m.record(OpUpdateProfile, false)
		m.endAuthed(gen, nil)
		if errors.Is(err, apiclient.ErrUnauthorized) {
			m.expire(gen)
			return failure(MsgSessionExpired)
		}
		return failure(messageFor(err))
	}

	var result *auth.User
	m.endAuthed(gen, func() {
		merged := updated.Clone()
		merged.ID = m.user.ID
		merged.Role = m.user.Role
		m.user = merged
		result = merged.Clone()
	})
	m.record(OpUpdateProfile, true)
	if result == nil {
		// Session ended while the request was in flight.
		return failure(MsgNotAuthenticated)
	}
	return Result{Success: true, User: result}
}

// ChangePassword changes the signed-in user's password. A 401 ends the
// session.
func (m *Manager) ChangePassword(ctx context.Context, current, next string) Result {
	token, gen, ok := m.beginAuthed()
	if !ok {
		return failure(MsgNotAuthenticated)
	}

	msg, err := m.api.ChangePassword(ctx, token, current, next)
	m.endAuthed(gen, nil)
	if err != nil {
		m.record(OpChangePassword, false)
		if errors.Is(err, apiclient.ErrUnauthorized) {
			m.expire(gen)
			return failure(MsgSessionExpired)
		}
		return failure(messageFor(err))
	}

	m.record(OpChangePassword, true)
	if msg == "" {
		msg = MsgPasswordChanged
	}
	return Result{Success: true, Message: msg}
}

// ForgotPassword requests a reset link. Whether the email exists is never
// revealed: every answer from the backend yields the same message. Only a
// transport failure is reported as a failure.
func (m *Manager) ForgotPassword(ctx context.Context, email string) Result {
	_, err := m.api.ForgotPassword(ctx, email)
	if err != nil && apiclient.IsTransport(err) {
		m.record(OpForgotPassword, false)
		return failure(MsgUnreachable)
	}
	if err != nil {
		m.logger.Debug("forgot-password answered with error", "status", apiclient.StatusOf(err))
	}
	m.record(OpForgotPassword, true)
	return Result{Success: true, Message: MsgResetSent}
}
