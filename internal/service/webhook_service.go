// internal/service/webhook_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/provider"
	"github.com/unclebandit/revive-backend/internal/repository"
)

const (
	VoiceCallStarted  = "call.started"
	VoiceUserTurn     = "user.turn"
	VoiceAITurn       = "ai.turn"
	VoiceSummaryReady = "summary.ready"
	VoiceCallEnded    = "call.ended"
	VoiceCallMissed   = "call.missed"

	BillingCheckoutCompleted = "checkout.session.completed"
	BillingInvoicePaid       = "invoice.paid"
	BillingInvoiceFailed     = "invoice.payment_failed"

	ActionSuppressed      = "suppressed"
	ActionBookingResponse = "booking-response"
)

type VoiceEvent struct {
	Type        string
	CallID      string
	EventID     string
	TurnID      string
	Timestamp   string
	// Digest identifies the raw payload when the provider sends no event id, turn id or timestamp.
	Digest      string
	From        string
	To          string
	Text        string
	CallerPhone string
	Summary     json.RawMessage
	Metadata    map[string]string
}

type SMSEvent struct {
	MessageSID string
	From       string
	To         string
	Body       string
}

type BillingEvent struct {
	ID     string
	Type   string
	Object json.RawMessage
	Raw    json.RawMessage
}

type WebhookAck struct {
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Action    string `json:"action,omitempty"`
	Choice    int    `json:"choice,omitempty"`
}

type WebhookService struct {
	Ledger          *Ledger
	Tx              repository.Transactor
	CallRepo        repository.CallRepositoryInterface
	JobRepo         repository.OutreachJobRepositoryInterface
	MessageRepo     repository.MessageRepositoryInterface
	SuppressionRepo repository.SuppressionRepositoryInterface
	TenantRepo      repository.TenantRepositoryInterface
	InvoiceRepo     repository.InvoiceRepositoryInterface
	AuditRepo       repository.AuditRepositoryInterface
	Usage           *UsageService
	Outbox          *OutboxService
	CRM             provider.CRMClient
	// SMS is nil when outbound messaging is not configured.
	SMS             provider.SMSSender
	DefaultTenantID string
	Log             *slog.Logger
	Now             func() time.Time
}

func (s *WebhookService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// admit runs apply only for a first delivery. The ledger row and the effects
// share one transaction, and a ledger store outside that transaction is
// released when the effects fail, so the provider's retry is admitted again.
func (s *WebhookService) admit(ctx context.Context, kind model.EventKind, identity string, apply func(ctx context.Context, ack *WebhookAck) error) (*WebhookAck, error) {
	ack := &WebhookAck{OK: true}
	admitted := false
	err := s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.Ledger.Admit(ctx, kind, identity)
		if err != nil {
			return err
		}
		if !ok {
			ack.Duplicate = true
			return nil
		}
		admitted = true
		return apply(ctx, ack)
	})
	if err != nil {
		if admitted {
			if relErr := s.Ledger.Release(context.WithoutCancel(ctx), kind, identity); relErr != nil {
				s.Log.Error("ledger release failed, retry will be treated as duplicate",
					"kind", kind, "event_id", identity, "err", relErr)
			}
		}
		return nil, err
	}
	if ack.Duplicate {
		s.Log.Info("duplicate webhook ignored", "kind", kind, "event_id", identity)
	}
	return ack, nil
}

func (s *WebhookService) HandleVoice(ctx context.Context, ev VoiceEvent) (*WebhookAck, error) {
	key := VoiceEventKey(ev.EventID, ev.CallID, ev.Type, ev.TurnID, ev.Timestamp, ev.Digest)
	ack, err := s.admit(ctx, model.EventKindVoice, key, func(ctx context.Context, _ *WebhookAck) error {
		return s.applyVoice(ctx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("WebhookService - HandleVoice: %w", err)
	}
	return ack, nil
}

func (s *WebhookService) applyVoice(ctx context.Context, ev VoiceEvent) error {
	now := s.now()

	switch ev.Type {
	case VoiceCallStarted:
		return s.CallRepo.MarkStarted(ctx, &model.Call{
			ID:        ev.CallID,
			TenantID:  s.tenantFor(ev.Metadata),
			From:      ev.From,
			To:        ev.To,
			StartedAt: &now,
			CreatedAt: now,
		})

	case VoiceUserTurn, VoiceAITurn:
		role := "ai"
		if ev.Type == VoiceUserTurn {
			role = "user"
		}
		return s.CallRepo.AddTurn(ctx, &model.CallTurn{
			ID:        uuid.NewString(),
			CallID:    ev.CallID,
			Role:      role,
			Text:      ev.Text,
			CreatedAt: now,
		})

	case VoiceSummaryReady:
		if err := s.CallRepo.UpdateSummary(ctx, ev.CallID, ev.Summary); err != nil {
			return err
		}
		return s.writeBack(ctx, ev)

	case VoiceCallEnded:
		return s.closeCall(ctx, ev.CallID, model.CallEnded, now)

	case VoiceCallMissed:
		return s.closeCall(ctx, ev.CallID, model.CallMissed, now)

	default:
		s.Log.Debug("voice event ignored", "type", ev.Type, "call_id", ev.CallID)
		return nil
	}
}

// closeCall ends the call, settles its job and meters whole minutes for answered calls.
func (s *WebhookService) closeCall(ctx context.Context, callID string, status model.CallStatus, now time.Time) error {
	call, err := s.CallRepo.MarkEnded(ctx, callID, status, now)
	if err != nil {
		return err
	}
	if call == nil {
		s.Log.Warn("end event for unknown or already ended call", "call_id", callID, "status", status)
		return nil
	}

	if call.JobID != nil {
		jobStatus, lastError := model.JobCompleted, ""
		if status == model.CallMissed {
			jobStatus, lastError = model.JobFailed, "call missed"
		}
		if err := s.JobRepo.UpdateStatus(ctx, *call.JobID, jobStatus, lastError); err != nil {
			return err
		}
	}

	if status != model.CallEnded || call.StartedAt == nil {
		return nil
	}
	minutes := int(math.Ceil(now.Sub(*call.StartedAt).Minutes()))
	if minutes <= 0 {
		return nil
	}

	if _, err := s.Usage.IncrementVoiceMinutes(ctx, call.TenantID, minutes); err != nil {
		var limitErr *appErrors.ErrUsageLimitExceeded
		if errors.As(err, &limitErr) {
			// the call already happened; the block is audited and the event still acknowledged
			s.Log.Warn("voice minutes not metered, usage limit exceeded",
				"call_id", callID, "tenant_id", call.TenantID, "minutes", minutes)
			return nil
		}
		return err
	}
	return nil
}

func (s *WebhookService) writeBack(ctx context.Context, ev VoiceEvent) error {
	if s.CRM == nil {
		return nil
	}

	lead := provider.CRMLead{FirstName: "Caller"}
	if ev.CallerPhone != "" {
		lead.Phones = []string{ev.CallerPhone}
	}
	res, err := s.CRM.UpsertLead(ctx, lead)
	if err != nil {
		s.Log.Warn("crm upsert failed, skipping write-back", "call_id", ev.CallID, "err", err)
		return nil
	}
	if res.Gated || res.PersonID == 0 {
		return nil
	}

	text := RenderTemplate(noteTemplate, map[string]string{"summary": string(ev.Summary)})
	if _, err := s.Outbox.Enqueue(ctx, model.OutboxKindCRMNote, model.CRMNotePayload{PersonID: res.PersonID, Text: text}); err != nil {
		return err
	}

	if strings.EqualFold(disposition(ev.Summary), "HOT") {
		if _, err := s.Outbox.Enqueue(ctx, model.OutboxKindCRMTask, model.CRMTaskPayload{PersonID: res.PersonID, Subject: hotTaskSubject}); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookService) HandleSMS(ctx context.Context, ev SMSEvent) (*WebhookAck, error) {
	tenantID := s.DefaultTenantID
	text := strings.TrimSpace(ev.Body)
	optedOut := false

	key := SMSEventKey(ev.MessageSID, ev.From, ev.To, text)
	ack, err := s.admit(ctx, model.EventKindSMS, key, func(ctx context.Context, ack *WebhookAck) error {
		now := s.now()
		if err := s.MessageRepo.Create(ctx, &model.Message{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			ProviderID: ev.MessageSID,
			From:       ev.From,
			To:         ev.To,
			Body:       text,
			Direction:  model.DirectionInbound,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		if strings.EqualFold(text, "STOP") {
			if err := s.SuppressionRepo.Create(ctx, &model.Suppression{
				ID:        uuid.NewString(),
				TenantID:  tenantID,
				Phone:     ev.From,
				Reason:    "STOP",
				CreatedAt: now,
			}); err != nil {
				return err
			}
			ack.Action = ActionSuppressed
			optedOut = true
			return nil
		}

		switch text {
		case "1", "2", "3":
			ack.Action = ActionBookingResponse
			ack.Choice, _ = strconv.Atoi(text)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("WebhookService - HandleSMS: %w", err)
	}

	if optedOut {
		s.confirmOptOut(ctx, tenantID, ev.From)
	}
	return ack, nil
}

// confirmOptOut is best effort: failures are logged, never returned.
func (s *WebhookService) confirmOptOut(ctx context.Context, tenantID, to string) {
	if s.SMS == nil {
		return
	}
	if _, err := s.Usage.IncrementSMS(ctx, tenantID, 1); err != nil {
		s.Log.Warn("opt-out confirmation not sent", "tenant_id", tenantID, "err", err)
		return
	}
	sid, err := s.SMS.SendSMS(ctx, to, optOutReply)
	if err != nil {
		s.Log.Warn("opt-out confirmation failed", "tenant_id", tenantID, "err", err)
		return
	}

	if err := s.MessageRepo.Create(ctx, &model.Message{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ProviderID: sid,
		To:         to,
		Body:       optOutReply,
		Direction:  model.DirectionOutbound,
		CreatedAt:  s.now(),
	}); err != nil {
		s.Log.Warn("store opt-out confirmation failed", "tenant_id", tenantID, "err", err)
	}
}

func (s *WebhookService) HandleBilling(ctx context.Context, ev BillingEvent) (*WebhookAck, error) {
	ack, err := s.admit(ctx, model.EventKindBilling, ev.ID, func(ctx context.Context, _ *WebhookAck) error {
		switch ev.Type {
		case BillingCheckoutCompleted:
			return s.applyCheckout(ctx, ev)
		case BillingInvoicePaid, BillingInvoiceFailed:
			return s.applyInvoice(ctx, ev)
		default:
			s.Log.Debug("billing event ignored", "type", ev.Type, "event_id", ev.ID)
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("WebhookService - HandleBilling: %w", err)
	}
	return ack, nil
}

func (s *WebhookService) applyCheckout(ctx context.Context, ev BillingEvent) error {
	var session struct {
		Customer          string            `json:"customer"`
		Subscription      string            `json:"subscription"`
		ClientReferenceID string            `json:"client_reference_id"`
		Metadata          map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(ev.Object, &session); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}

	tenantID := session.ClientReferenceID
	if tenantID == "" {
		tenantID = s.tenantFor(session.Metadata)
	}

	if err := s.TenantRepo.UpdateBilling(ctx, tenantID, session.Customer, session.Subscription); err != nil {
		if !appErrors.IsNotFound(err) {
			return err
		}
		s.Log.Warn("checkout for unknown tenant", "tenant_id", tenantID, "event_id", ev.ID)
	}
	return s.audit(ctx, tenantID, model.AuditCheckoutComplete, ev.Raw)
}

func (s *WebhookService) applyInvoice(ctx context.Context, ev BillingEvent) error {
	var inv struct {
		ID        string            `json:"id"`
		Status    string            `json:"status"`
		AmountDue int64             `json:"amount_due"`
		Currency  string            `json:"currency"`
		Metadata  map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(ev.Object, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	tenantID := s.tenantFor(inv.Metadata)

	auditType := model.AuditInvoicePaid
	if ev.Type == BillingInvoiceFailed {
		auditType = model.AuditInvoiceFailed
	}
	if err := s.audit(ctx, tenantID, auditType, ev.Raw); err != nil {
		return err
	}

	if inv.ID == "" {
		return nil
	}
	now := s.now()
	return s.InvoiceRepo.Upsert(ctx, &model.Invoice{
		ID:          inv.ID,
		TenantID:    tenantID,
		Status:      inv.Status,
		AmountCents: inv.AmountDue,
		Currency:    inv.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *WebhookService) audit(ctx context.Context, tenantID, typ string, data json.RawMessage) error {
	return s.AuditRepo.Create(ctx, &model.AuditLog{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Type:      typ,
		Data:      data,
		CreatedAt: s.now(),
	})
}

func (s *WebhookService) tenantFor(metadata map[string]string) string {
	if id := metadata["tenant_id"]; id != "" {
		return id
	}
	return s.DefaultTenantID
}

func disposition(summary json.RawMessage) string {
	var body struct {
		Disposition string `json:"disposition"`
	}
	if len(summary) == 0 || json.Unmarshal(summary, &body) != nil {
		return ""
	}
	return body.Disposition
}
