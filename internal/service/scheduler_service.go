// internal/service/scheduler_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/provider"
	"github.com/unclebandit/revive-backend/internal/repository"
)

const (
	DefaultDeferDelay = 60 * time.Second
	DefaultClaimLease = 5 * time.Minute
	leadNotFound      = "revive lead not found"
)

type TickResult struct {
	Processed int    `json:"processed"`
	Skipped   bool   `json:"skipped,omitempty"`
	Deferred  bool   `json:"deferred,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CallID    string `json:"call_id,omitempty"`
}

type NewLead struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
}

type SchedulerService struct {
	JobRepo         repository.OutreachJobRepositoryInterface
	LeadRepo        repository.ReviveLeadRepositoryInterface
	AttemptRepo     repository.OutreachAttemptRepositoryInterface
	TenantRepo      repository.TenantRepositoryInterface
	CallRepo        repository.CallRepositoryInterface
	SuppressionRepo repository.SuppressionRepositoryInterface
	Tx              repository.Transactor
	Compliance      *ComplianceService
	Concurrency     *ConcurrencyService
	// Voice is nil when no voice credentials are configured.
	Voice           provider.VoiceProvider
	Agent           provider.AgentProfile
	FromNumber      string
	DefaultTimezone string
	DeferDelay      time.Duration
	// ClaimLease is how long a claimed job may sit unprocessed before
	// another tick takes it over.
	ClaimLease      time.Duration
	Log             *slog.Logger
	Now             func() time.Time
}

func (s *SchedulerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Tick claims at most one due job and dispatches, defers or skips it.
func (s *SchedulerService) Tick(ctx context.Context) (*TickResult, error) {
	now := s.now()

	lease := s.ClaimLease
	if lease <= 0 {
		lease = DefaultClaimLease
	}

	job, err := s.JobRepo.ClaimDue(ctx, now, now.Add(-lease))
	if err != nil {
		return nil, fmt.Errorf("SchedulerService - Tick - s.JobRepo.ClaimDue: %w", err)
	}
	if job == nil {
		return &TickResult{Processed: 0}, nil
	}
	log := s.Log.With("job_id", job.ID, "tenant_id", job.TenantID)

	lead, err := s.LeadRepo.GetByID(ctx, job.ReviveLeadID)
	if err != nil {
		return nil, s.release(ctx, job, fmt.Errorf("SchedulerService - Tick - s.LeadRepo.GetByID: %w", err))
	}
	if lead == nil {
		log.Warn("job references missing lead", "revive_lead_id", job.ReviveLeadID)
		if err := s.JobRepo.UpdateStatus(ctx, job.ID, model.JobFailed, leadNotFound); err != nil {
			return nil, fmt.Errorf("SchedulerService - Tick - s.JobRepo.UpdateStatus: %w", err)
		}
		return &TickResult{Processed: 0, JobID: job.ID}, nil
	}

	tenant, err := s.TenantRepo.GetByID(ctx, job.TenantID)
	if err != nil {
		return nil, s.release(ctx, job, fmt.Errorf("SchedulerService - Tick - s.TenantRepo.GetByID: %w", err))
	}
	tenantTZ := s.DefaultTimezone
	if tenant != nil && tenant.Timezone != "" {
		tenantTZ = tenant.Timezone
	}
	leadTZ := ""
	if lead.Timezone != nil {
		leadTZ = *lead.Timezone
	}

	decision, err := s.Compliance.Check(ctx, job.TenantID, tenantTZ, leadTZ, now)
	if err != nil {
		return nil, s.release(ctx, job, fmt.Errorf("SchedulerService - Tick - s.Compliance.Check: %w", err))
	}
	if !decision.Allowed {
		return s.skip(ctx, job, decision.Reason, now)
	}

	suppressed, err := s.SuppressionRepo.IsSuppressed(ctx, job.TenantID, lead.Phone)
	if err != nil {
		return nil, s.release(ctx, job, fmt.Errorf("SchedulerService - Tick - s.SuppressionRepo.IsSuppressed: %w", err))
	}
	if suppressed {
		return s.skip(ctx, job, ReasonSuppressed, now)
	}

	allowed, err := s.Concurrency.ConcurrencyAllowed(ctx, job.TenantID)
	if err != nil {
		return nil, s.release(ctx, job, fmt.Errorf("SchedulerService - Tick - s.Concurrency.ConcurrencyAllowed: %w", err))
	}
	if !allowed {
		delay := s.DeferDelay
		if delay <= 0 {
			delay = DefaultDeferDelay
		}
		if err := s.JobRepo.Defer(ctx, job.ID, now.Add(delay)); err != nil {
			return nil, fmt.Errorf("SchedulerService - Tick - s.JobRepo.Defer: %w", err)
		}
		log.Info("job deferred at concurrency cap", "run_at", now.Add(delay))
		return &TickResult{Processed: 0, Deferred: true, JobID: job.ID}, nil
	}

	if s.Voice == nil {
		return nil, s.release(ctx, job, appErrors.NewNotConfigured("voice"))
	}

	return s.dispatch(ctx, job, lead, now, log)
}

func (s *SchedulerService) dispatch(ctx context.Context, job *model.OutreachJob, lead *model.ReviveLead, now time.Time, log *slog.Logger) (*TickResult, error) {
	agentID, err := s.Voice.ConfigureAgent(ctx, s.Agent)
	if err != nil {
		return nil, s.fail(ctx, job, fmt.Errorf("SchedulerService - dispatch - s.Voice.ConfigureAgent: %w", err))
	}

	callID, err := s.Voice.StartCall(ctx, provider.StartCallRequest{
		To:      lead.Phone,
		From:    s.FromNumber,
		AgentID: agentID,
		Context: map[string]string{
			"tenant_id": job.TenantID,
			"job_id":    job.ID,
			"lead_id":   lead.ID,
		},
	})
	if err != nil {
		return nil, s.fail(ctx, job, fmt.Errorf("SchedulerService - dispatch - s.Voice.StartCall: %w", err))
	}

	meta, _ := json.Marshal(map[string]string{"call_id": callID, "agent_id": agentID})
	err = s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		jobID := job.ID
		if err := s.CallRepo.Create(ctx, &model.Call{
			ID:        callID,
			TenantID:  job.TenantID,
			JobID:     &jobID,
			From:      s.FromNumber,
			To:        lead.Phone,
			Status:    model.CallQueued,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.AttemptRepo.Create(ctx, &model.OutreachAttempt{
			ID:        uuid.NewString(),
			JobID:     job.ID,
			Outcome:   model.OutcomeDialed,
			Meta:      meta,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.JobRepo.MarkRunning(ctx, job.ID); err != nil {
			return err
		}
		return s.LeadRepo.MarkAttempted(ctx, lead.ID, model.LeadStageContacted, now)
	})
	if err != nil {
		// the call is already placed; leave the job claimed for inspection rather than redial
		log.Error("dispatch bookkeeping failed", "call_id", callID, "err", err)
		return nil, fmt.Errorf("SchedulerService - dispatch - s.Tx.WithinTransaction: %w", err)
	}

	log.Info("job dispatched", "call_id", callID)
	return &TickResult{Processed: 1, JobID: job.ID, CallID: callID}, nil
}

// skip is terminal for the job: it is never rescheduled automatically.
func (s *SchedulerService) skip(ctx context.Context, job *model.OutreachJob, reason BlockReason, now time.Time) (*TickResult, error) {
	meta, _ := json.Marshal(map[string]string{"reason": string(reason)})

	err := s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.JobRepo.UpdateStatus(ctx, job.ID, model.JobSkipped, string(reason)); err != nil {
			return err
		}
		return s.AttemptRepo.Create(ctx, &model.OutreachAttempt{
			ID:        uuid.NewString(),
			JobID:     job.ID,
			Outcome:   model.OutcomeSkipped,
			Meta:      meta,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("SchedulerService - skip - s.Tx.WithinTransaction: %w", err)
	}

	s.Log.Info("job skipped", "job_id", job.ID, "tenant_id", job.TenantID, "reason", reason)
	return &TickResult{Processed: 1, Skipped: true, JobID: job.ID, Reason: string(reason)}, nil
}

// release returns a claimed job to the queue unchanged and passes cause through.
func (s *SchedulerService) release(ctx context.Context, job *model.OutreachJob, cause error) error {
	if err := s.JobRepo.UpdateStatus(ctx, job.ID, model.JobQueued, job.LastError); err != nil {
		s.Log.Error("release claimed job failed", "job_id", job.ID, "err", err)
	}
	return cause
}

func (s *SchedulerService) fail(ctx context.Context, job *model.OutreachJob, cause error) error {
	if err := s.JobRepo.UpdateStatus(ctx, job.ID, model.JobFailed, cause.Error()); err != nil {
		s.Log.Error("mark job failed failed", "job_id", job.ID, "err", err)
	}
	s.Log.Warn("dispatch failed", "job_id", job.ID, "tenant_id", job.TenantID, "err", cause)
	return cause
}

// AddLeads stores dormant leads for re-engagement. Unparseable phones are skipped.
func (s *SchedulerService) AddLeads(ctx context.Context, tenantID string, leads []NewLead) ([]*model.ReviveLead, error) {
	now := s.now()
	created := []*model.ReviveLead{}

	for _, in := range leads {
		phone := NormalizePhone(in.Phone)
		if phone == "" {
			s.Log.Warn("skipping lead with invalid phone", "tenant_id", tenantID, "phone", in.Phone)
			continue
		}

		lead := &model.ReviveLead{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Name:      in.Name,
			Phone:     phone,
			Email:     in.Email,
			Stage:     model.LeadStageQueued,
			CreatedAt: now,
		}
		if in.Timezone != "" {
			tz := in.Timezone
			lead.Timezone = &tz
		}

		if err := s.LeadRepo.Create(ctx, lead); err != nil {
			return created, fmt.Errorf("SchedulerService - AddLeads - s.LeadRepo.Create: %w", err)
		}
		created = append(created, lead)
	}
	return created, nil
}

// Enqueue creates a queued job for up to limit leads that have no open job.
func (s *SchedulerService) Enqueue(ctx context.Context, tenantID string, limit int, runAt time.Time) ([]*model.OutreachJob, error) {
	if limit <= 0 {
		limit = 10
	}
	now := s.now()
	if runAt.IsZero() {
		runAt = now
	}

	leads, err := s.LeadRepo.ListEnqueueable(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("SchedulerService - Enqueue - s.LeadRepo.ListEnqueueable: %w", err)
	}

	jobs := make([]*model.OutreachJob, 0, len(leads))
	for _, lead := range leads {
		job := &model.OutreachJob{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			ReviveLeadID: lead.ID,
			Status:       model.JobQueued,
			RunAt:        runAt,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.JobRepo.Create(ctx, job); err != nil {
			return jobs, fmt.Errorf("SchedulerService - Enqueue - s.JobRepo.Create: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
