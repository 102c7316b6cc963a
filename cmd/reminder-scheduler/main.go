// Command reminder-scheduler turns scheduled reminders into sidecar jobs
// and publishes reminder.fired when they come due.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/config"
	"github.com/gocodealone/taskrecur/internal/health"
	"github.com/gocodealone/taskrecur/internal/messaging"
	"github.com/gocodealone/taskrecur/internal/reminder"
	"github.com/gocodealone/taskrecur/internal/sidecar"
	"github.com/gocodealone/taskrecur/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := config.ApplyYAMLFile(&cfg, "config.yaml"); err != nil {
		return err
	}

	logger, err := applog.NewZap(cfg.LogLevel)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Migrate(migrateCtx, db); err != nil {
		return err
	}

	sidecarClient := sidecar.New(cfg.SidecarHTTPPort)
	bus := messaging.New(sidecarClient, cfg.PubsubComponent, logger)
	reminders := store.NewReminderStore(db)

	varianceBudget := time.Duration(cfg.ReminderVarianceBudgetMS) * time.Millisecond
	scheduler := reminder.New(reminders, sidecarClient, bus, logger.With("component", "reminder-scheduler"), varianceBudget)
	scheduler.Subscribe()

	recoverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Recover(recoverCtx); err != nil {
		return err
	}
	if err := scheduler.StartWatchdog(context.Background()); err != nil {
		return err
	}
	defer scheduler.StopWatchdog()

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	health.New(db).Mount(r)
	bus.Mount(r)
	scheduler.Mount(r)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ConsumerDrainDeadline)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("reminder scheduler listening", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
