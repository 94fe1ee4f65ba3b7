// internal/queue/amqp.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/unclebandit/revive-backend/internal/model"
)

// AMQPQueue publishes triggers to a durable RabbitMQ queue. Failed triggers
// are republished with an incremented retry header, then acked.
type AMQPQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	name       string
	maxRetries int
	log        *slog.Logger
	mu         sync.Mutex
}

func DialAMQP(url, name string, maxRetries int, log *slog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("DialAMQP - amqp.Dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("DialAMQP - conn.Channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("DialAMQP - ch.QueueDeclare: %w", err)
	}

	return &AMQPQueue{conn: conn, ch: ch, name: q.Name, maxRetries: maxRetries, log: log}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, t model.Trigger) error {
	return q.publish(t, 0)
}

func (q *AMQPQueue) publish(t model.Trigger, retries int) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("AMQPQueue - publish - json.Marshal: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.ch.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{RetryHeader: int32(retries)},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("AMQPQueue - publish - q.ch.Publish: %w", err)
	}
	return nil
}

func (q *AMQPQueue) Consume(ctx context.Context, handler Handler) error {
	msgs, err := q.ch.Consume(
		q.name,
		"",
		false, // autoAck off so a crash redelivers
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("AMQPQueue - Consume - q.ch.Consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return ErrClosed
			}
			q.handle(ctx, handler, d)
		}
	}
}

func (q *AMQPQueue) handle(ctx context.Context, handler Handler, d amqp.Delivery) {
	var t model.Trigger
	if err := json.Unmarshal(d.Body, &t); err != nil {
		q.log.Warn("invalid trigger payload dropped", "err", err)
		d.Ack(false)
		return
	}

	err := handler(ctx, t)
	if err == nil {
		d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	if Retryable(err) && retries < q.maxRetries {
		if pubErr := q.publish(t, retries+1); pubErr != nil {
			q.log.Error("requeue trigger failed", "kind", t.Kind, "err", pubErr)
			d.Nack(false, true)
			return
		}
		q.log.Warn("trigger failed, requeued", "kind", t.Kind, "retry", retries+1, "err", err)
		d.Ack(false)
		return
	}

	q.log.Error("trigger dropped", "kind", t.Kind, "retries", retries, "err", err)
	d.Ack(false)
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return fmt.Errorf("AMQPQueue - Close - q.ch.Close: %w", err)
	}
	return q.conn.Close()
}

// retryCount reads the retry header, which arrives as whatever integer width the broker chose.
func retryCount(h amqp.Table) int {
	switch v := h[RetryHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}
