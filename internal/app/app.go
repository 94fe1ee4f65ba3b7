// internal/app/app.go
package app

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/revive-backend/internal/config"
	"github.com/unclebandit/revive-backend/internal/provider"
	"github.com/unclebandit/revive-backend/internal/repository"
	"github.com/unclebandit/revive-backend/internal/service"
)

const redisLedgerTTL = 30 * 24 * time.Hour

// App holds the wired services shared by the server and the worker.
type App struct {
	Scheduler  *service.SchedulerService
	Compliance *service.ComplianceService
	Usage      *service.UsageService
	Outbox     *service.OutboxService
	Webhooks   *service.WebhookService
	Settings   *service.SettingsService
	Worker     *service.Worker

	Voice provider.VoiceProvider
	CRM   *provider.FollowUpBossClient
	SMS   provider.SMSSender
}

// New wires repositories, providers and services. rdb may be nil.
func New(cfg *config.Config, conn *sql.DB, rdb *redis.Client, log *slog.Logger) *App {
	pg := repository.NewPostgres(conn)

	tenantRepo := repository.NewTenantRepository(pg)
	leadRepo := repository.NewReviveLeadRepository(pg)
	jobRepo := repository.NewOutreachJobRepository(pg)
	attemptRepo := repository.NewOutreachAttemptRepository(pg)
	callRepo := repository.NewCallRepository(pg)
	usageRepo := repository.NewUsageRepository(pg)
	auditRepo := repository.NewAuditRepository(pg)
	outboxRepo := repository.NewOutboxRepository(pg)
	settingsRepo := repository.NewSettingsRepository(pg)
	suppressionRepo := repository.NewSuppressionRepository(pg)
	messageRepo := repository.NewMessageRepository(pg)
	invoiceRepo := repository.NewInvoiceRepository(pg)

	var events repository.ProcessedEventRepositoryInterface = repository.NewProcessedEventRepository(pg)
	if cfg.Redis.LedgerBackend == "redis" && rdb != nil {
		events = repository.NewRedisEventStore(rdb, redisLedgerTTL)
	}
	log.Info("idempotency ledger", "backend", cfg.Redis.LedgerBackend)

	a := &App{
		CRM: provider.NewFollowUpBossClient(cfg.CRM.APIKey, cfg.CRM.BaseURL),
	}
	// keep the interfaces nil when unconfigured rather than holding a nil pointer
	if v := provider.NewRetellClient(cfg.Voice.APIKey, cfg.Voice.BaseURL, cfg.Voice.WebhookURL); v != nil {
		a.Voice = v
	}
	if s := provider.NewTwilioClient(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.MessagingServiceSID, cfg.SMS.BaseURL); s != nil {
		a.SMS = s
	}

	a.Compliance = &service.ComplianceService{Settings: settingsRepo}

	a.Usage = &service.UsageService{
		UsageRepo:  usageRepo,
		AuditRepo:  auditRepo,
		TenantRepo: tenantRepo,
		Tx:         pg,
		Settings: service.UsageSettings{
			Enforce:       cfg.Usage.EnforceCaps,
			Mode:          service.OverageMode(cfg.Usage.OverageMode),
			WarnThreshold: cfg.Usage.WarnThreshold,
		},
		Log: log,
	}

	a.Outbox = &service.OutboxService{
		Repo:      outboxRepo,
		Handlers:  service.CRMHandlers(a.CRM),
		BaseDelay: cfg.Outbox.BaseDelay,
		MaxDelay:  cfg.Outbox.MaxDelay,
		Log:       log,
	}

	a.Scheduler = &service.SchedulerService{
		JobRepo:         jobRepo,
		LeadRepo:        leadRepo,
		AttemptRepo:     attemptRepo,
		TenantRepo:      tenantRepo,
		CallRepo:        callRepo,
		SuppressionRepo: suppressionRepo,
		Tx:              pg,
		Compliance:      a.Compliance,
		Concurrency:     &service.ConcurrencyService{TenantRepo: tenantRepo, CallRepo: callRepo},
		Voice:           a.Voice,
		Agent:           provider.AgentProfile{Name: cfg.Voice.AgentName, Industry: cfg.Voice.AgentIndustry},
		FromNumber:      cfg.Voice.FromNumber,
		DefaultTimezone: cfg.Scheduler.DefaultTimezone,
		DeferDelay:      cfg.Scheduler.DeferDelay,
		ClaimLease:      cfg.Scheduler.ClaimLease,
		Log:             log,
	}

	a.Webhooks = &service.WebhookService{
		Ledger:          &service.Ledger{Events: events},
		Tx:              pg,
		CallRepo:        callRepo,
		JobRepo:         jobRepo,
		MessageRepo:     messageRepo,
		SuppressionRepo: suppressionRepo,
		TenantRepo:      tenantRepo,
		InvoiceRepo:     invoiceRepo,
		AuditRepo:       auditRepo,
		Usage:           a.Usage,
		Outbox:          a.Outbox,
		CRM:             a.CRM,
		SMS:             a.SMS,
		DefaultTenantID: cfg.Scheduler.DefaultTenantID,
		Log:             log,
	}

	a.Settings = &service.SettingsService{
		SuppressionRepo: suppressionRepo,
		AuditRepo:       auditRepo,
		TenantRepo:      tenantRepo,
		InvoiceRepo:     invoiceRepo,
		Log:             log,
	}

	a.Worker = service.NewWorker(a.Scheduler, a.Outbox, cfg.Outbox.FlushLimit, log)
	return a
}
