// Command gateway runs the Task Mutation Gateway: the REST surface for
// creating, updating, completing, and deleting tasks.
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
	"github.com/gocodealone/taskrecur/internal/audit"
	"github.com/gocodealone/taskrecur/internal/auth"
	"github.com/gocodealone/taskrecur/internal/config"
	"github.com/gocodealone/taskrecur/internal/gateway"
	"github.com/gocodealone/taskrecur/internal/health"
	"github.com/gocodealone/taskrecur/internal/messaging"
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	sidecarClient := sidecar.New(cfg.SidecarHTTPPort)
	bus := messaging.New(sidecarClient, cfg.PubsubComponent, logger)

	tasks := store.NewTaskStore(db)
	reminders := store.NewReminderStore(db)
	auditStore := store.NewAuditStore(db)

	gw := gateway.New(tasks, reminders, bus, logger.With("component", "gateway"))
	validator := auth.NewValidator(cfg.JWTSigningKey)
	healthChecker := health.New(db)
	auditReader := audit.New(auditStore, bus, logger.With("component", "audit-read"))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.ConsumerMessageDeadline))

	healthChecker.Mount(r)
	bus.Mount(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(validator))
		gw.Mount(r)
		gw.MountAdmin(r)
	})
	auditReader.Mount(r)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ConsumerDrainDeadline)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
