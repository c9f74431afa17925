package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/expo-client-core/internal/apiclient"
	"github.com/nerrad567/expo-client-core/internal/audit"
	"github.com/nerrad567/expo-client-core/internal/auth"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/expo-client-core/internal/realtime"
	"github.com/nerrad567/expo-client-core/internal/session"
)

var (
	errNotSignedIn = errors.New("not signed in; run 'expoclient login'")
	errSessionLost = errors.New("session ended by the server")
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":           {"sign in and store the token", runLogin},
	"register":        {"create an account and sign in", runRegister},
	"logout":          {"sign out and forget the stored token", runLogout},
	"whoami":          {"show the signed-in user", runWhoami},
	"forgot-password": {"request a password reset email", runForgotPassword},
	"change-password": {"change the signed-in user's password", runChangePassword},
	"update-profile":  {"change profile fields of the signed-in user", runUpdateProfile},
	"run":             {"stream realtime expo events", runStream},
	"history":         {"show recent sign-in activity on this device", runHistory},
}

func newFlagSet(a *app, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errUsage
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}
	return nil
}

// resultErr turns a failed session result into an error.
func resultErr(res session.Result) error {
	if res.Success {
		return nil
	}
	return errors.New(res.Error)
}

// Views the signed-in commands stand for, as seen by the route gate.
const (
	viewProfile        = "/profile"
	viewProfileEdit    = "/profile/edit"
	viewChangePassword = "/profile/password"
	viewLive           = "/expos/live"
	viewActivity       = "/account/activity"
)

// authorize restores the stored session and asks the route gate whether
// view may be shown to it.
func authorize(ctx context.Context, m *session.Manager, view string) error {
	m.Bootstrap(ctx)
	d := m.Guard(auth.AnyRole(), view)
	if d.Allowed() {
		return nil
	}
	if loc := d.Location(); loc != "" {
		return fmt.Errorf("%w (sign in at %s)", errNotSignedIn, loc)
	}
	return errNotSignedIn
}

// ============================================================================
// Account commands
// ============================================================================

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "login")
	email := fs.StringP("email", "e", "", "account email")
	if err := parse(fs, args); err != nil {
		return err
	}

	m := a.manager(nil)
	if s := m.Bootstrap(ctx); s.Authenticated() {
		return fmt.Errorf("already signed in as %s; run 'expoclient logout' first", s.User.Email)
	}

	p := newPrompter(a.in, a.out)
	addr, err := p.value(*email, "Email")
	if err != nil {
		return err
	}
	password, err := p.secret("Password")
	if err != nil {
		return err
	}

	res := m.Login(ctx, addr, password)
	if err := resultErr(res); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", res.User.DisplayName(), res.User.Role)
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "register")
	var reg apiclient.Registration
	fs.StringVarP(&reg.Email, "email", "e", "", "account email")
	fs.StringVar(&reg.Username, "username", "", "username")
	fs.StringVar(&reg.FirstName, "first-name", "", "first name")
	fs.StringVar(&reg.LastName, "last-name", "", "last name")
	fs.StringVar(&reg.Company, "company", "", "company (exhibitors)")
	fs.StringVar(&reg.Phone, "phone", "", "phone number")
	role := fs.String("role", string(auth.RoleAttendee), "organizer, exhibitor or attendee")
	if err := parse(fs, args); err != nil {
		return err
	}

	r, err := auth.ParseRole(*role)
	if err != nil {
		return err
	}
	reg.Role = r

	p := newPrompter(a.in, a.out)
	if reg.Email, err = p.value(reg.Email, "Email"); err != nil {
		return err
	}
	if reg.Password, err = p.secret("Password"); err != nil {
		return err
	}
	confirm, err := p.secret("Confirm password")
	if err != nil {
		return err
	}
	if confirm != reg.Password {
		return errors.New("passwords do not match")
	}

	m := a.manager(nil)
	m.Bootstrap(ctx)
	res := m.Register(ctx, reg)
	if err := resultErr(res); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered and signed in as %s (%s)\n", res.User.DisplayName(), res.User.Role)
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlagSet(a, "logout"), args); err != nil {
		return err
	}
	a.manager(nil).Logout()
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "whoami")
	asJSON := fs.Bool("json", false, "print the user as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}

	m := a.manager(nil)
	if err := authorize(ctx, m, viewProfile); err != nil {
		return err
	}
	u := m.User()
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(u)
	}
	fmt.Fprintf(a.out, "%s <%s>\nrole: %s\nid:   %s\n", u.DisplayName(), u.Email, u.Role, u.ID)
	return nil
}

func runForgotPassword(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "forgot-password")
	email := fs.StringP("email", "e", "", "account email")
	if err := parse(fs, args); err != nil {
		return err
	}
	addr, err := newPrompter(a.in, a.out).value(*email, "Email")
	if err != nil {
		return err
	}

	res := a.manager(nil).ForgotPassword(ctx, addr)
	if err := resultErr(res); err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Message)
	return nil
}

func runChangePassword(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlagSet(a, "change-password"), args); err != nil {
		return err
	}
	m := a.manager(nil)
	if err := authorize(ctx, m, viewChangePassword); err != nil {
		return err
	}

	p := newPrompter(a.in, a.out)
	current, err := p.secret("Current password")
	if err != nil {
		return err
	}
	next, err := p.secret("New password")
	if err != nil {
		return err
	}

	res := m.ChangePassword(ctx, current, next)
	if err := resultErr(res); err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Message)
	return nil
}

func runUpdateProfile(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "update-profile")
	fields := map[string]**string{}
	var upd apiclient.ProfileUpdate
	for name, dst := range map[string]**string{
		"email":      &upd.Email,
		"username":   &upd.Username,
		"first-name": &upd.FirstName,
		"last-name":  &upd.LastName,
		"company":    &upd.Company,
		"phone":      &upd.Phone,
		"bio":        &upd.Bio,
	} {
		fs.String(name, "", "new "+strings.ReplaceAll(name, "-", " "))
		fields[name] = dst
	}
	if err := parse(fs, args); err != nil {
		return err
	}
	// Only flags given on the command line are sent, so "" clears a field.
	fs.Visit(func(f *pflag.Flag) {
		v := f.Value.String()
		*fields[f.Name] = &v
	})

	m := a.manager(nil)
	if err := authorize(ctx, m, viewProfileEdit); err != nil {
		return err
	}
	res := m.UpdateProfile(ctx, upd)
	if err := resultErr(res); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Profile updated for %s\n", res.User.DisplayName())
	return nil
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "history")
	var filter audit.Filter
	fs.StringVar(&filter.Action, "action", "", "only this action (login, logout, token_expired, ...)")
	fs.BoolVar(&filter.Failed, "failed", false, "only failed attempts")
	fs.IntVarP(&filter.Limit, "limit", "n", 20, "number of entries")
	asJSON := fs.Bool("json", false, "print entries as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	if a.events == nil {
		return fmt.Errorf("history needs the %s credential backend", config.BackendSQLite)
	}
	if err := authorize(ctx, a.manager(nil), viewActivity); err != nil {
		return err
	}

	res, err := a.events.List(ctx, filter)
	if err != nil {
		return err
	}
	if *asJSON {
		return json.NewEncoder(a.out).Encode(res)
	}
	for _, e := range res.Events {
		outcome := "ok"
		if !e.Success {
			outcome = "failed"
		}
		fmt.Fprintf(a.out, "%s  %-16s %s\n", e.CreatedAt.Local().Format(time.DateTime), e.Action, outcome)
	}
	fmt.Fprintf(a.out, "%d of %d entries\n", len(res.Events), res.Total)
	return nil
}

// ============================================================================
// Realtime
// ============================================================================

// streamedEvent is one line of run output.
type streamedEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func runStream(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "run")
	rooms := fs.StringSlice("room", nil, "expo room to join (repeatable)")
	if err := parse(fs, args); err != nil {
		return err
	}

	ch := a.channel()
	defer ch.Shutdown()
	m := a.manager(ch)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	enc := json.NewEncoder(a.out)
	for _, name := range realtime.EventNames {
		ch.Subscribe(name, func(payload json.RawMessage) {
			if err := enc.Encode(streamedEvent{Event: name, Payload: payload}); err != nil {
				a.log.Warn("writing event failed", "event", name, "error", err)
			}
		})
	}

	ch.OnStateChange(func(s realtime.State) {
		a.log.Info("realtime state changed", "state", s.String())
		switch s {
		case realtime.Connected:
			for _, room := range *rooms {
				if err := ch.JoinRoom(room); err != nil {
					a.log.Warn("joining room failed", "room", room, "error", err)
				}
			}
		case realtime.Disconnected:
			if errors.Is(ch.LastError(), realtime.ErrRejected) {
				m.Logout()
				cancel(errSessionLost)
			}
		}
	})

	if a.cfg.MQTT.Enabled {
		stop, err := startRelay(a, ch)
		if err != nil {
			return err
		}
		defer stop()
	}

	if err := authorize(ctx, m, viewLive); err != nil {
		return err
	}
	u := m.User()
	a.log.Info("streaming realtime events", "user_id", u.ID, "role", string(u.Role), "rooms", *rooms)

	<-ctx.Done()
	if err := context.Cause(ctx); errors.Is(err, errSessionLost) {
		return err
	}
	return nil
}

// startRelay connects to the broker and mirrors ch onto it.
func startRelay(a *app, ch *realtime.Channel) (stop func(), err error) {
	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(a.log)
	client.SetOnConnect(func() { a.log.Info("MQTT reconnected") })
	client.SetOnDisconnect(func(err error) { a.log.Warn("MQTT disconnected", "error", err) })

	relay := realtime.NewRelay(ch, client, byte(a.cfg.MQTT.QoS), a.log)
	if err := relay.Start(); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("starting MQTT relay: %w", err)
	}
	a.log.Info("MQTT relay started",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"prefix", a.cfg.MQTT.TopicPrefix,
	)

	return func() {
		relay.Stop()
		if closeErr := client.Close(); closeErr != nil {
			a.log.Error("error closing MQTT", "error", closeErr)
		}
	}, nil
}
