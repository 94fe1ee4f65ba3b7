package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/revive-backend/internal/logging"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/service"
)

var outboxNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newOutboxService(repo *fakeOutbox, handlers map[string]service.OutboxHandler) *service.OutboxService {
	return &service.OutboxService{
		Repo:      repo,
		Handlers:  handlers,
		BaseDelay: 5 * time.Second,
		MaxDelay:  600 * time.Second,
		Log:       logging.Discard(),
		Now:       fixedClock(outboxNow),
	}
}

func TestBackoff(t *testing.T) {
	base, maxDelay := 5*time.Second, 600*time.Second

	tests := []struct {
		tries int
		want  time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{3, 40 * time.Second},
		{6, 320 * time.Second},
		{7, 600 * time.Second},
		{10, 600 * time.Second},
		{200, 600 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, service.Backoff(tt.tries, base, maxDelay), "tries %d", tt.tries)
	}
}

func TestFlush_FailureSchedulesBackoff(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOutbox()
	svc := newOutboxService(repo, map[string]service.OutboxHandler{
		"always.fails": func(ctx context.Context, payload json.RawMessage) error {
			return errors.New("upstream 503")
		},
	})

	item, err := svc.Enqueue(ctx, "always.fails", map[string]string{"a": "b"})
	require.NoError(t, err)

	res, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, &service.FlushResult{Processed: 1, Failed: 1}, res)

	stored := repo.items[item.ID]
	assert.Equal(t, 1, stored.TryCount)
	assert.Equal(t, outboxNow.Add(5*time.Second), stored.NextAttemptAt)
	assert.Equal(t, "upstream 503", stored.LastError)
	assert.Nil(t, stored.DeliveredAt)

	// not due again until the backoff elapses
	res, err = svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
}

func TestFlush_BackoffAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOutbox()
	svc := newOutboxService(repo, map[string]service.OutboxHandler{
		"x": func(ctx context.Context, payload json.RawMessage) error { return errors.New("boom") },
	})

	for _, tt := range []struct {
		tries int
		want  time.Duration
	}{{3, 40 * time.Second}, {10, 600 * time.Second}} {
		item := &model.WebhookOutbox{ID: "item", Kind: "x", Payload: json.RawMessage(`{}`), TryCount: tt.tries, NextAttemptAt: outboxNow}
		repo.items = map[string]*model.WebhookOutbox{}
		repo.order = nil
		require.NoError(t, repo.Create(ctx, item))

		_, err := svc.Flush(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, outboxNow.Add(tt.want), repo.items["item"].NextAttemptAt)
		assert.Equal(t, tt.tries+1, repo.items["item"].TryCount)
	}
}

func TestFlush_OneFailureDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOutbox()
	delivered := []string{}
	svc := newOutboxService(repo, map[string]service.OutboxHandler{
		"ok": func(ctx context.Context, payload json.RawMessage) error {
			delivered = append(delivered, string(payload))
			return nil
		},
		"panics": func(ctx context.Context, payload json.RawMessage) error {
			panic("handler bug")
		},
	})

	_, err := svc.Enqueue(ctx, "ok", 1)
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, "panics", 2)
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, "unknown.kind", 3)
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, "ok", 4)
	require.NoError(t, err)

	res, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, &service.FlushResult{Processed: 4, Delivered: 2, Failed: 2}, res)
	assert.Equal(t, []string{"1", "4"}, delivered)

	for _, it := range repo.byKind("panics") {
		assert.Contains(t, it.LastError, "panic")
	}
	for _, it := range repo.byKind("unknown.kind") {
		assert.Equal(t, 1, it.TryCount)
	}
}

func TestFlush_RespectsLimit(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOutbox()
	svc := newOutboxService(repo, map[string]service.OutboxHandler{
		"ok": func(ctx context.Context, payload json.RawMessage) error { return nil },
	})
	for i := 0; i < 5; i++ {
		_, err := svc.Enqueue(ctx, "ok", i)
		require.NoError(t, err)
	}

	res, err := svc.Flush(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)

	res, err = svc.Flush(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Delivered)
}

func TestCRMHandlers_Delivery(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOutbox()
	crm := &fakeCRM{personID: 42}
	svc := newOutboxService(repo, service.CRMHandlers(crm))

	_, err := svc.Enqueue(ctx, model.OutboxKindCRMNote, model.CRMNotePayload{PersonID: 42, Text: "hello"})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, model.OutboxKindCRMTask, model.CRMTaskPayload{PersonID: 42, Subject: "call back"})
	require.NoError(t, err)

	res, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, []string{"hello"}, crm.notes)
	assert.Equal(t, []string{"call back"}, crm.tasks)
}

func TestCRMHandlers_GatedStaysQueued(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOutbox()
	svc := newOutboxService(repo, service.CRMHandlers(&fakeCRM{gated: true}))

	item, err := svc.Enqueue(ctx, model.OutboxKindCRMNote, model.CRMNotePayload{PersonID: 1, Text: "x"})
	require.NoError(t, err)

	res, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Nil(t, repo.items[item.ID].DeliveredAt)
	assert.Equal(t, service.ErrCRMGated.Error(), repo.items[item.ID].LastError)
}
