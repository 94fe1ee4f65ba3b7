package app_test

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/revive-backend/internal/app"
	"github.com/unclebandit/revive-backend/internal/config"
	"github.com/unclebandit/revive-backend/internal/logging"
	"github.com/unclebandit/revive-backend/internal/repository"
	"github.com/unclebandit/revive-backend/internal/service"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Redis.LedgerBackend = "postgres"
	cfg.Usage.OverageMode = "soft"
	cfg.Outbox.FlushLimit = 20
	cfg.Scheduler.DefaultTenantID = "default"
	return cfg
}

func TestNew_UnconfiguredProviders(t *testing.T) {
	a := app.New(baseConfig(), nil, nil, logging.Discard())

	assert.Nil(t, a.Voice)
	assert.Nil(t, a.SMS)
	require.NotNil(t, a.CRM)
	assert.False(t, a.CRM.Configured())

	// nil interfaces, not typed nil pointers, so the services can test for absence
	assert.Nil(t, a.Scheduler.Voice)
	assert.Nil(t, a.Webhooks.SMS)

	require.NotNil(t, a.Worker)
	assert.Equal(t, 20, a.Worker.FlushLimit)
	assert.Contains(t, a.Outbox.Handlers, "fub.note")
	assert.Contains(t, a.Outbox.Handlers, "fub.task")
}

func TestNew_ConfiguredProviders(t *testing.T) {
	cfg := baseConfig()
	cfg.Voice.APIKey = "key_test"
	cfg.SMS.AccountSID = "AC123"
	cfg.SMS.AuthToken = "secret"
	cfg.SMS.MessagingServiceSID = "MG123"
	cfg.CRM.APIKey = "fub_test"
	cfg.Usage.EnforceCaps = true
	cfg.Usage.OverageMode = "hard"

	a := app.New(cfg, nil, nil, logging.Discard())

	assert.NotNil(t, a.Voice)
	assert.NotNil(t, a.SMS)
	assert.True(t, a.CRM.Configured())
	assert.True(t, a.Usage.Settings.Enforce)
	assert.Equal(t, service.OverageHard, a.Usage.Settings.Mode)
}

func TestNew_LedgerBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.Redis.LedgerBackend = "redis"

	// without a client the postgres ledger is kept
	a := app.New(cfg, nil, nil, logging.Discard())
	assert.IsType(t, &repository.ProcessedEventRepository{}, a.Webhooks.Ledger.Events)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	a = app.New(cfg, nil, rdb, logging.Discard())
	assert.IsType(t, &repository.RedisEventStore{}, a.Webhooks.Ledger.Events)
}
