// Expo Fake - local stand-in for the expo backend.
//
// expofake serves the user REST endpoints and the realtime websocket
// in-process so expoclient can be exercised without the real platform.
// Accounts are seeded from flags and live in memory only.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/expo-client-core/internal/auth"
	"github.com/nerrad567/expo-client-core/internal/fakebackend"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
	"github.com/nerrad567/expo-client-core/internal/realtime"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("expofake", pflag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:5000", "listen address")
	secret := fs.String("secret", "", "HS256 signing key (random when empty)")
	ttl := fs.Duration("token-ttl", fakebackend.DefaultTokenTTL, "issued token lifetime")
	users := fs.StringArray("user", nil, "seed account as email:password[:role] (repeatable)")
	demo := fs.Duration("demo-interval", 0, "broadcast a demo event to every client at this interval (0 disables)")
	level := fs.String("log-level", "info", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.New(config.LoggingConfig{Level: *level, Format: "text"}, version)
	srv := fakebackend.New(fakebackend.Options{
		Logger:   log,
		Secret:   []byte(*secret),
		TokenTTL: *ttl,
	})

	for _, spec := range *users {
		u, err := seedUser(srv, spec)
		if err != nil {
			return fmt.Errorf("seeding %q: %w", spec, err)
		}
		log.Info("seeded account", "email", u.Email, "role", string(u.Role), "user_id", u.ID)
	}

	if *demo > 0 {
		go broadcastDemo(ctx, srv, *demo, log)
	}

	return srv.Serve(ctx, *addr)
}

// seedUser parses email:password[:role] and adds the account.
func seedUser(srv *fakebackend.Server, spec string) (auth.User, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return auth.User{}, errors.New("want email:password[:role]")
	}
	u := auth.User{Email: parts[0]}
	if len(parts) == 3 {
		role, err := auth.ParseRole(parts[2])
		if err != nil {
			return auth.User{}, err
		}
		u.Role = role
	}
	return srv.AddUser(u, parts[1])
}

// broadcastDemo cycles through the event names until ctx is done.
func broadcastDemo(ctx context.Context, srv *fakebackend.Server, every time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			name := realtime.EventNames[i%len(realtime.EventNames)]
			n := srv.Broadcast("", name, map[string]any{"demo": true, "seq": i, "at": now.UTC()})
			log.Debug("demo event broadcast", "event", name, "clients", n)
		}
	}
}
