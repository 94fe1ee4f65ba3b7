// internal/queue/queue.go
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
	"github.com/unclebandit/revive-backend/internal/model"
)

const (
	DefaultMaxRetries = 3
	RetryHeader       = "x-retry-count"
)

var ErrClosed = errors.New("queue closed")

type Handler func(ctx context.Context, t model.Trigger) error

// Queue carries triggers from publishers to a single consumer loop.
type Queue interface {
	Publish(ctx context.Context, t model.Trigger) error
	// Consume blocks until ctx is done or the queue is closed.
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// Retryable reports whether a failed trigger should be redelivered.
// Missing provider configuration will not fix itself on retry.
func Retryable(err error) bool {
	return err != nil && !appErrors.IsNotConfigured(err)
}

// InMemoryQueue is a buffered channel queue with bounded retry.
type InMemoryQueue struct {
	ch         chan model.Trigger
	done       chan struct{}
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
}

func NewInMemoryQueue(buffer, maxRetries int, log *slog.Logger) *InMemoryQueue {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &InMemoryQueue{
		ch:         make(chan model.Trigger, buffer),
		done:       make(chan struct{}),
		maxRetries: maxRetries,
		retryDelay: 500 * time.Millisecond,
		log:        log,
	}
}

func (q *InMemoryQueue) Publish(ctx context.Context, t model.Trigger) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- t:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("InMemoryQueue - Publish: %w", ctx.Err())
	}
}

func (q *InMemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case t := <-q.ch:
			q.process(ctx, handler, t)
		}
	}
}

// process retries with a linear backoff until the handler succeeds or retries run out.
func (q *InMemoryQueue) process(ctx context.Context, handler Handler, t model.Trigger) {
	for attempt := 0; ; attempt++ {
		err := handler(ctx, t)
		if err == nil {
			return
		}
		if !Retryable(err) || attempt >= q.maxRetries {
			q.log.Error("trigger dropped", "kind", t.Kind, "attempts", attempt+1, "err", err)
			return
		}

		q.log.Warn("trigger failed, retrying", "kind", t.Kind, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt+1) * q.retryDelay):
		}
	}
}

func (q *InMemoryQueue) Close() error {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
	return nil
}

// Every publishes each trigger on every interval tick until ctx is done.
func Every(ctx context.Context, q Queue, interval time.Duration, log *slog.Logger, triggers ...model.Trigger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range triggers {
				if err := q.Publish(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("publish trigger failed", "kind", t.Kind, "err", err)
				}
			}
		}
	}
}
