// Command otpserver runs the whole OTP cluster — Message Director,
// State Server, Client Agent, Database Server and the event-log sink —
// as one process group, wired together in-process (spec.md §1, §6).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toontownretro/otp-server/internal/clientagent"
	"github.com/toontownretro/otp-server/internal/config"
	"github.com/toontownretro/otp-server/internal/dbbackend"
	"github.com/toontownretro/otp-server/internal/dbbackend/packed"
	"github.com/toontownretro/otp-server/internal/dbbackend/plaintext"
	"github.com/toontownretro/otp-server/internal/dbbackend/sqlbackend"
	"github.com/toontownretro/otp-server/internal/dbserver"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/eventlog"
	"github.com/toontownretro/otp-server/internal/md"
	"github.com/toontownretro/otp-server/internal/stateserver"
	"github.com/toontownretro/otp-server/internal/token"
	"github.com/toontownretro/otp-server/internal/visgroup"
)

const ConfigPathEnv = "OTP_CONFIG"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := "config/otpserver.yaml"
	if p := os.Getenv(ConfigPathEnv); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.ClientAgent.LogLevel),
	})))
	slog.Info("otpserver starting",
		"md_port", cfg.MessageDirector.Port,
		"ca_port", cfg.ClientAgent.Port,
		"eventlog_port", cfg.EventLog.Port,
		"database_backend", cfg.DatabaseServer.Database.Backend)

	registry := buildRegistry()

	backend, err := buildBackend(ctx, cfg.DatabaseServer.Database, registry)
	if err != nil {
		return fmt.Errorf("building database backend: %w", err)
	}

	// Break the SS/CA/DBSS construction cycle: build the State Server
	// first with its broadcaster/persister wired in after the Client
	// Agent and Database Server exist.
	ss := stateserver.New(registry, nil, nil)
	dbss := dbserver.New(registry, backend, ss)
	ca := clientagent.New(clientagent.Config{
		Registry:    registry,
		StateServer: ss,
		DBServer:    dbss,
		Visgroups:   visgroup.NewTable(nil),
		Names:       token.DefaultNames(),
		AvatarClass: avatarClassName,
	})
	ss.SetBroadcaster(ca)
	ss.SetPersister(dbss)

	// The Message Director runs as its own listening service (spec.md §6
	// "Listen endpoints": MD TCP), for external peers that join the bus
	// over the wire. This binary's own State Server, Client Agent and
	// Database Server never publish onto it: they are colocated in one
	// process and call each other directly (see DESIGN.md's Process
	// wiring entry for why).
	mdServer := md.NewServer(md.NewBus())

	sink := eventlog.NewSink(func(ev eventlog.Event) {
		slog.Info("event log", "type", ev.Type, "who", ev.Who, "event", ev.EventName)
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.MessageDirector.BindAddress, cfg.MessageDirector.Port)
		slog.Info("starting message director", "addr", addr)
		if err := mdServer.Run(gctx, addr); err != nil {
			return fmt.Errorf("message director: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.ClientAgent.BindAddress, cfg.ClientAgent.Port)
		slog.Info("starting client agent", "addr", addr)
		if err := ca.Run(gctx, addr); err != nil {
			return fmt.Errorf("client agent: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.EventLog.BindAddress, cfg.EventLog.Port)
		slog.Info("starting event log", "addr", addr)
		if err := sink.ListenAndServe(gctx, addr); err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// buildBackend selects and constructs the persistence strategy named by
// dbcfg.Backend (spec.md §6 "database-backend in {raw, packed, sql}").
func buildBackend(ctx context.Context, dbcfg config.DatabaseConfig, registry *dclass.Registry) (dbbackend.Backend, error) {
	switch dbcfg.Backend {
	case config.DatabaseBackendPacked:
		return packed.New(dbcfg.Directory, dbcfg.Extension, registry), nil
	case config.DatabaseBackendSQL:
		if err := sqlbackend.RunMigrations(ctx, dbcfg.DSN()); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, dbcfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		backend := sqlbackend.New(pool, registry)
		if err := backend.EnsureSchema(ctx, registry.Classes()); err != nil {
			return nil, fmt.Errorf("ensuring sql schema: %w", err)
		}
		return backend, nil
	case config.DatabaseBackendRaw, "":
		return plaintext.New(dbcfg.Directory, dbcfg.Extension, registry), nil
	default:
		return nil, fmt.Errorf("unknown database-backend %q", dbcfg.Backend)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
