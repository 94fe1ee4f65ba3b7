// cmd/worker/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/revive-backend/internal/app"
	"github.com/unclebandit/revive-backend/internal/config"
	"github.com/unclebandit/revive-backend/internal/db"
	"github.com/unclebandit/revive-backend/internal/logging"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/queue"
)

// tickBatch bounds how many jobs one scheduled tick trigger may claim.
const tickBatch = 10

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level).With("component", "worker")

	if err := run(cfg, log); err != nil {
		log.Error("worker stopped", "err", err)
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

	q, err := queue.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.MaxRetries, log)
	if err != nil {
		return err
	}
	defer q.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return q.Consume(ctx, deps.Worker.Handle)
	})
	if cfg.AMQP.TriggerInterval > 0 {
		g.Go(func() error {
			queue.Every(ctx, q, cfg.AMQP.TriggerInterval, log,
				model.Trigger{Kind: model.TriggerTick, Limit: tickBatch},
				model.Trigger{Kind: model.TriggerFlush, Limit: cfg.Outbox.FlushLimit},
			)
			return nil
		})
	}

	log.Info("worker waiting for triggers", "queue", cfg.AMQP.Queue, "interval", cfg.AMQP.TriggerInterval)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("worker shut down")
	return nil
}
