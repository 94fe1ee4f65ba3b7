// cmd/server/main.go
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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/revive-backend/internal/app"
	"github.com/unclebandit/revive-backend/internal/config"
	"github.com/unclebandit/revive-backend/internal/controller"
	"github.com/unclebandit/revive-backend/internal/db"
	"github.com/unclebandit/revive-backend/internal/handler"
	"github.com/unclebandit/revive-backend/internal/logging"
	"github.com/unclebandit/revive-backend/internal/middleware"
	"github.com/unclebandit/revive-backend/internal/queue"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.PG.URL, cfg.PG.MaxOpenConns)
	if err != nil {
		return err
	}
	defer conn.Close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	deps := app.New(cfg, conn, rdb, log)

	// a broker outage must not stop the API serving; fall back to an in-process queue
	var (
		triggers queue.Queue
		local    *queue.InMemoryQueue
	)
	if q, err := queue.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.MaxRetries, log); err != nil {
		log.Warn("trigger broker unavailable, consuming triggers in process", "err", err)
		local = queue.NewInMemoryQueue(64, cfg.AMQP.MaxRetries, log)
		triggers = local
	} else {
		triggers = q
	}
	defer triggers.Close()

	var counter middleware.Counter = middleware.NewLocalCounter()
	if rdb != nil {
		counter = middleware.NewRedisCounter(rdb)
	}

	reviveController := &controller.ReviveController{
		Scheduler:       deps.Scheduler,
		Compliance:      deps.Compliance,
		Triggers:        triggers,
		DefaultTenantID: cfg.Scheduler.DefaultTenantID,
		Log:             log,
	}
	outboxController := &controller.OutboxController{
		Outbox:   deps.Outbox,
		Triggers: triggers,
		Log:      log,
	}
	settingsController := &controller.SettingsController{
		Usage:           deps.Usage,
		Settings:        deps.Settings,
		DefaultTenantID: cfg.Scheduler.DefaultTenantID,
		Log:             log,
	}
	webhookHandler := &handler.WebhookHandler{
		Service:         deps.Webhooks,
		PublicBaseURL:   cfg.HTTP.PublicBaseURL,
		TwilioAuthToken: cfg.SMS.AuthToken,
		StripeSecret:    cfg.Billing.WebhookSecret,
		StripeTolerance: cfg.Billing.SignatureMaxSkew,
		Log:             log,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.RateLimit(counter, middleware.Limits{
		IPPerMinute:      cfg.RateLimit.IPPerMinute,
		WebhookPerMinute: cfg.RateLimit.WebhookPerMinute,
	}, log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.PingContext(r.Context()); err != nil {
			handler.WriteMessage(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		handler.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	// Revive routes
	r.Mount("/revive", reviveController.Routes())
	r.Post("/outbox/flush", outboxController.Flush)

	// Settings routes
	r.Get("/usage/summary", settingsController.UsageSummary)
	r.Post("/compliance/dnc/upload", settingsController.UploadDnc)
	r.Get("/audit/logs", settingsController.AuditLogs)
	r.Get("/billing/summary", settingsController.BillingSummary)

	r.Mount("/webhooks", webhookHandler.Routes())

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if local != nil {
		g.Go(func() error {
			return local.Consume(gctx, deps.Worker.Handle)
		})
	}
	g.Go(func() error {
		log.Info("server running", "addr", cfg.HTTP.Addr, "voice", deps.Voice != nil, "crm", deps.CRM.Configured(), "sms", deps.SMS != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
