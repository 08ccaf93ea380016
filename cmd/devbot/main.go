package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/devbot/internal/adapter/driven/filestore"
	"github.com/ericfisherdev/devbot/internal/adapter/driven/natskv"
	"github.com/ericfisherdev/devbot/internal/adapter/driven/plan"
	"github.com/ericfisherdev/devbot/internal/adapter/driven/shortener"
	sqliteadapter "github.com/ericfisherdev/devbot/internal/adapter/driven/sqlite"
	localtransport "github.com/ericfisherdev/devbot/internal/adapter/driven/transport/local"
	httphandler "github.com/ericfisherdev/devbot/internal/adapter/driving/http"
	"github.com/ericfisherdev/devbot/internal/application"
	"github.com/ericfisherdev/devbot/internal/config"
	"github.com/ericfisherdev/devbot/internal/domain/model"
	"github.com/ericfisherdev/devbot/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on bad or missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"session_id", cfg.SessionID,
		"store_backend", cfg.StoreBackend,
		"listen_addr", cfg.ListenAddr,
		"send_time", cfg.SendTime,
		"timezone", cfg.Timezone,
		"schedule_enabled", cfg.ScheduleEnabled,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the credential store backend.
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			slog.Error("error closing credential store", "error", closeErr)
		}
	}()

	// 4. Create the session manager over the messaging transport.
	transport := localtransport.NewClient(slog.Default())
	session := application.NewSessionManager(transport, store, application.SessionConfig{
		SessionID:      cfg.SessionID,
		ReconnectDelay: cfg.ReconnectDelay,
	}, slog.Default())
	session.OnPairingCode(func(code model.PairingCode) {
		slog.Info("pairing code issued, scan via GET /api/v1/pairing/qr",
			"code", code.Code,
			"generation", code.Generation,
		)
	})

	if _, err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop()

	// 5. Load the reading plan and wire the delivery pipeline.
	var short plan.Shortener
	if cfg.ShortenerURL != "" {
		short = shortener.New(cfg.ShortenerURL, nil, slog.Default())
	}

	// The pipeline exists whenever a plan is configured, so manual delivery
	// works even with the daily schedule disabled. A nil task makes the
	// scheduler reject both arming and manual firings.
	var task application.TaskFunc
	if cfg.PlanPath != "" {
		provider, err := plan.Load(cfg.PlanPath, short, slog.Default())
		if err != nil {
			return err
		}
		delivery := application.NewDeliveryService(provider, session, cfg.Destinations, slog.Default())
		task = delivery.DeliverToday
	} else {
		slog.Info("no reading plan configured, delivery disabled")
	}

	scheduler := application.NewDeliveryScheduler(task, application.SchedulerConfig{
		Schedule: model.Schedule{
			SendTime: cfg.SendTime,
			Timezone: cfg.Timezone,
			Enabled:  cfg.ScheduleEnabled,
		},
	}, slog.Default())

	if cfg.ScheduleEnabled {
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	} else {
		slog.Info("scheduled delivery disabled")
	}

	// 6. HTTP admin API.
	apiHandler := httphandler.NewHandler(session, scheduler, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("devbot started",
		"session_id", cfg.SessionID,
		"destinations", len(cfg.Destinations),
	)

	// 7. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// Scheduler first so no firing starts against a closing session.
	scheduler.Stop()
	session.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// openStore builds the configured credential store backend and returns it
// with its close function.
func openStore(cfg *config.Config) (driven.CredentialStore, func() error, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		db, err := sqliteadapter.NewDB(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		slog.Info("sqlite store opened", "path", cfg.DBPath)
		return sqliteadapter.NewCredentialRepo(db), db.Close, nil

	case config.StoreFile:
		store, err := filestore.New(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("file store opened", "dir", cfg.StoreDir)
		return store, func() error { return nil }, nil

	case config.StoreNATS:
		store, err := natskv.New(cfg.NATSURL, cfg.NATSBucket)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("nats kv store opened", "url", cfg.NATSURL, "bucket", cfg.NATSBucket)
		return store, store.Close, nil
	}

	// config.Load already validated the backend name.
	return nil, nil, errors.New("unreachable: unknown store backend")
}
