package main

import (
	"context"
	"fmt"
	"io"

	"github.com/nerrad567/expo-client-core/internal/apiclient"
	"github.com/nerrad567/expo-client-core/internal/audit"
	"github.com/nerrad567/expo-client-core/internal/auth"
	"github.com/nerrad567/expo-client-core/internal/credential"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/database"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
	"github.com/nerrad567/expo-client-core/internal/realtime"
	"github.com/nerrad567/expo-client-core/internal/session"
	"github.com/nerrad567/expo-client-core/migrations"
)

// app holds the components shared by every command.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	db     *database.DB // shared by store and events; nil unless credentials live in SQLite
	store  credential.Store
	api    *apiclient.Client
	influx *influxdb.Client
	events *audit.SQLiteRepository // nil unless credentials live in SQLite
	in     io.Reader
	out    io.Writer

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (*app, error) {
	a := &app{
		cfg: cfg,
		log: logging.New(cfg.Logging, version),
		in:  in,
		out: out,
	}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	var err error
	a.api, err = apiclient.New(cfg.API, apiclient.WithLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("creating API client: %w", err)
	}

	if cfg.InfluxDB.Enabled {
		a.influx, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		a.influx.SetOnError(func(err error) {
			a.log.Error("InfluxDB write error", "error", err)
		})
		a.onClose(func() {
			if closeErr := a.influx.Close(); closeErr != nil {
				a.log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		a.log.Debug("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	ok = true
	return a, nil
}

// openStore opens the credential store. With the SQLite backend one
// connection serves both the store and the auth journal.
func (a *app) openStore(ctx context.Context) error {
	cfg := a.cfg.Credentials
	if cfg.Backend == config.BackendSQLite {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("opening credential database: %w", err)
		}
		a.onClose(func() {
			if closeErr := db.Close(); closeErr != nil {
				a.log.Error("error closing credential database", "error", closeErr)
			}
		})
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrating credential database: %w", err)
		}
		a.db = db
		a.store = credential.NewSQLiteStore(db)
		a.events = audit.NewSQLiteRepository(db)
		return nil
	}

	store, err := credential.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	a.store = store
	a.onClose(func() {
		if closeErr := store.Close(); closeErr != nil {
			a.log.Error("error closing credential store", "error", closeErr)
		}
	})
	return nil
}

// onClose registers fn to run on close, in reverse order of registration.
func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// routes returns the gate's redirect targets from config.
func (a *app) routes() auth.Routes {
	return auth.Routes{Login: a.cfg.Routes.Login, Landing: a.cfg.Routes.Landing}
}

// manager creates the session manager. rt may be nil for commands that
// never open the realtime channel.
func (a *app) manager(rt session.Realtime) *session.Manager {
	deps := session.Deps{
		API:      a.api,
		Store:    a.store,
		Realtime: rt,
		Logger:   a.log,
		Routes:   a.routes(),
	}
	var sinks telemetrySinks
	if a.events != nil {
		sinks = append(sinks, audit.NewRecorder(a.events, a.log))
	}
	if a.influx != nil {
		sinks = append(sinks, a.influx)
	}
	if len(sinks) > 0 {
		deps.Telemetry = sinks
	}
	return session.New(deps)
}

// telemetrySinks reports session outcomes to each sink in turn.
type telemetrySinks []session.Telemetry

func (s telemetrySinks) WriteAuthEvent(operation string, success bool) {
	for _, sink := range s {
		sink.WriteAuthEvent(operation, success)
	}
}

// channel creates the realtime channel from config.
func (a *app) channel() *realtime.Channel {
	opts := realtime.OptionsFromConfig(a.cfg.Realtime)
	opts.Logger = a.log
	if a.influx != nil {
		opts.Telemetry = a.influx
	}
	return realtime.NewChannel(opts)
}
