// internal/service/worker.go
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/unclebandit/revive-backend/internal/model"
)

type Ticker interface {
	Tick(ctx context.Context) (*TickResult, error)
}

type Flusher interface {
	Flush(ctx context.Context, limit int) (*FlushResult, error)
}

// Worker executes triggers delivered by a queue.
type Worker struct {
	Scheduler  Ticker
	Outbox     Flusher
	FlushLimit int
	Log        *slog.Logger
}

func NewWorker(scheduler Ticker, outbox Flusher, flushLimit int, log *slog.Logger) *Worker {
	return &Worker{
		Scheduler:  scheduler,
		Outbox:     outbox,
		FlushLimit: flushLimit,
		Log:        log,
	}
}

// Handle runs one trigger. A tick trigger runs up to Limit ticks and stops
// early once no due job is left.
func (w *Worker) Handle(ctx context.Context, t model.Trigger) error {
	switch t.Kind {
	case model.TriggerTick:
		limit := max(t.Limit, 1)
		dispatched := 0
		for i := 0; i < limit; i++ {
			res, err := w.Scheduler.Tick(ctx)
			if err != nil {
				return fmt.Errorf("Worker - Handle - w.Scheduler.Tick: %w", err)
			}
			if res.JobID == "" {
				break
			}
			if res.CallID != "" {
				dispatched++
			}
		}
		w.Log.Debug("tick trigger done", "dispatched", dispatched)
		return nil

	case model.TriggerFlush:
		limit := t.Limit
		if limit <= 0 {
			limit = w.FlushLimit
		}
		res, err := w.Outbox.Flush(ctx, limit)
		if err != nil {
			return fmt.Errorf("Worker - Handle - w.Outbox.Flush: %w", err)
		}
		if res.Processed > 0 {
			w.Log.Info("outbox flushed", "processed", res.Processed, "delivered", res.Delivered, "failed", res.Failed)
		}
		return nil

	default:
		w.Log.Warn("unknown trigger ignored", "kind", t.Kind)
		return nil
	}
}
