package service_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
	"github.com/unclebandit/revive-backend/internal/logging"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/provider"
	"github.com/unclebandit/revive-backend/internal/repository"
	"github.com/unclebandit/revive-backend/internal/service"
)

// --- Mock Repositories ---

type fakeTx struct{ calls int }

func (f *fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeTenants struct {
	tenants map[string]*model.Tenant
}

func newFakeTenants(ts ...*model.Tenant) *fakeTenants {
	f := &fakeTenants{tenants: map[string]*model.Tenant{}}
	for _, t := range ts {
		f.tenants[t.ID] = t
	}
	return f
}

func (f *fakeTenants) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	return f.tenants[id], nil
}

func (f *fakeTenants) Create(ctx context.Context, t *model.Tenant) error {
	f.tenants[t.ID] = t
	return nil
}

func (f *fakeTenants) UpdateBilling(ctx context.Context, id, customerID, subscriptionID string) error {
	t, ok := f.tenants[id]
	if !ok {
		return appErrors.NewNotFound("tenant", id)
	}
	t.StripeCustomerID = &customerID
	t.StripeSubscriptionID = &subscriptionID
	return nil
}

type fakeLeads struct {
	leads     map[string]*model.ReviveLead
	attempted map[string]time.Time
}

func newFakeLeads(ls ...*model.ReviveLead) *fakeLeads {
	f := &fakeLeads{leads: map[string]*model.ReviveLead{}, attempted: map[string]time.Time{}}
	for _, l := range ls {
		f.leads[l.ID] = l
	}
	return f
}

func (f *fakeLeads) Create(ctx context.Context, l *model.ReviveLead) error {
	f.leads[l.ID] = l
	return nil
}

func (f *fakeLeads) GetByID(ctx context.Context, id string) (*model.ReviveLead, error) {
	return f.leads[id], nil
}

func (f *fakeLeads) ListEnqueueable(ctx context.Context, tenantID string, limit int) ([]*model.ReviveLead, error) {
	out := []*model.ReviveLead{}
	for _, l := range f.leads {
		if l.TenantID == tenantID && l.Stage == model.LeadStageQueued {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLeads) MarkAttempted(ctx context.Context, id, stage string, at time.Time) error {
	if l, ok := f.leads[id]; ok {
		l.Stage = stage
		l.LastAttemptAt = &at
	}
	f.attempted[id] = at
	return nil
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*model.OutreachJob
}

func newFakeJobs(js ...*model.OutreachJob) *fakeJobs {
	f := &fakeJobs{jobs: map[string]*model.OutreachJob{}}
	for _, j := range js {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeJobs) Create(ctx context.Context, j *model.OutreachJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
	return nil
}

func (f *fakeJobs) GetByID(ctx context.Context, id string) (*model.OutreachJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id], nil
}

func (f *fakeJobs) ClaimDue(ctx context.Context, now, staleBefore time.Time) (*model.OutreachJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due *model.OutreachJob
	for _, j := range f.jobs {
		queued := j.Status == model.JobQueued && !j.RunAt.After(now)
		stale := j.Status == model.JobClaimed && j.ClaimedAt != nil && !j.ClaimedAt.After(staleBefore)
		if !queued && !stale {
			continue
		}
		if due == nil || j.RunAt.Before(due.RunAt) {
			due = j
		}
	}
	if due == nil {
		return nil, nil
	}
	due.Status = model.JobClaimed
	claimedAt := now
	due.ClaimedAt = &claimedAt
	cp := *due
	return &cp, nil
}

func (f *fakeJobs) UpdateStatus(ctx context.Context, id string, status model.JobStatus, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.Status = status
		j.LastError = lastError
	}
	return nil
}

func (f *fakeJobs) Defer(ctx context.Context, id string, runAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.Status = model.JobQueued
		j.RunAt = runAt
	}
	return nil
}

func (f *fakeJobs) MarkRunning(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.Status = model.JobRunning
		j.Attempts++
		j.LastError = ""
	}
	return nil
}

type fakeAttempts struct {
	attempts []*model.OutreachAttempt
}

func (f *fakeAttempts) Create(ctx context.Context, a *model.OutreachAttempt) error {
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeAttempts) ListByJob(ctx context.Context, jobID string) ([]*model.OutreachAttempt, error) {
	out := []*model.OutreachAttempt{}
	for _, a := range f.attempts {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeCalls struct {
	calls          map[string]*model.Call
	turns          []*model.CallTurn
	summaryUpdates int
	turnErr        error
}

func newFakeCalls(cs ...*model.Call) *fakeCalls {
	f := &fakeCalls{calls: map[string]*model.Call{}}
	for _, c := range cs {
		f.calls[c.ID] = c
	}
	return f
}

func (f *fakeCalls) Create(ctx context.Context, c *model.Call) error {
	if existing, ok := f.calls[c.ID]; ok {
		if existing.JobID == nil {
			existing.JobID = c.JobID
		}
		return nil
	}
	f.calls[c.ID] = c
	return nil
}

func (f *fakeCalls) GetByID(ctx context.Context, id string) (*model.Call, error) {
	return f.calls[id], nil
}

func (f *fakeCalls) MarkStarted(ctx context.Context, c *model.Call) error {
	if existing, ok := f.calls[c.ID]; ok {
		existing.Status = model.CallStarted
		existing.StartedAt = c.StartedAt
		return nil
	}
	c.Status = model.CallStarted
	f.calls[c.ID] = c
	return nil
}

func (f *fakeCalls) UpdateSummary(ctx context.Context, id string, summary json.RawMessage) error {
	f.summaryUpdates++
	if c, ok := f.calls[id]; ok {
		c.Summary = summary
	}
	return nil
}

func (f *fakeCalls) MarkEnded(ctx context.Context, id string, status model.CallStatus, endedAt time.Time) (*model.Call, error) {
	c, ok := f.calls[id]
	if !ok || c.EndedAt != nil {
		return nil, nil
	}
	c.Status = status
	c.EndedAt = &endedAt
	cp := *c
	return &cp, nil
}

func (f *fakeCalls) CountActive(ctx context.Context, tenantID string) (int, error) {
	n := 0
	for _, c := range f.calls {
		if c.TenantID == tenantID && c.Status == model.CallStarted && c.EndedAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeCalls) AddTurn(ctx context.Context, turn *model.CallTurn) error {
	if f.turnErr != nil {
		return f.turnErr
	}
	f.turns = append(f.turns, turn)
	return nil
}

type fakeUsage struct {
	records []*model.UsageRecord
	locks   int
}

func (f *fakeUsage) Append(ctx context.Context, rec *model.UsageRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeUsage) SumByKind(ctx context.Context, tenantID string, from, to time.Time) (map[model.UsageKind]int, error) {
	totals := map[model.UsageKind]int{}
	for _, r := range f.records {
		if r.TenantID == tenantID && !r.PeriodStart.Before(from) && r.PeriodStart.Before(to) {
			totals[r.Kind] += r.Amount
		}
	}
	return totals, nil
}

func (f *fakeUsage) LockTenant(ctx context.Context, tenantID string) error {
	f.locks++
	return nil
}

type fakeAudit struct {
	logs []*model.AuditLog
}

func (f *fakeAudit) Create(ctx context.Context, entry *model.AuditLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeAudit) ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	out := []*model.AuditLog{}
	for i := len(f.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.logs[i])
	}
	return out, nil
}

func (f *fakeAudit) types() []string {
	out := []string{}
	for _, l := range f.logs {
		out = append(out, l.Type)
	}
	return out
}

type fakeOutbox struct {
	items map[string]*model.WebhookOutbox
	order []string
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{items: map[string]*model.WebhookOutbox{}}
}

func (f *fakeOutbox) Create(ctx context.Context, item *model.WebhookOutbox) error {
	f.items[item.ID] = item
	f.order = append(f.order, item.ID)
	return nil
}

func (f *fakeOutbox) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.WebhookOutbox, error) {
	out := []*model.WebhookOutbox{}
	for _, id := range f.order {
		it := f.items[id]
		if it.DeliveredAt == nil && !it.NextAttemptAt.After(now) && len(out) < limit {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	f.items[id].DeliveredAt = &at
	return nil
}

func (f *fakeOutbox) MarkFailed(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	it := f.items[id]
	it.TryCount++
	if nextAttemptAt.After(it.NextAttemptAt) {
		it.NextAttemptAt = nextAttemptAt
	}
	it.LastError = lastError
	return nil
}

func (f *fakeOutbox) byKind(kind string) []*model.WebhookOutbox {
	out := []*model.WebhookOutbox{}
	for _, id := range f.order {
		if f.items[id].Kind == kind {
			out = append(out, f.items[id])
		}
	}
	return out
}

type fakeEvents struct {
	mu       sync.Mutex
	seen     map[string]bool
	released int
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{seen: map[string]bool{}}
}

func (f *fakeEvents) Insert(ctx context.Context, ev *model.ProcessedEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(ev.Kind) + "|" + ev.ID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeEvents) Release(ctx context.Context, kind model.EventKind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, string(kind)+"|"+id)
	f.released++
	return nil
}

type fakeSettings struct {
	paused map[string]bool
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{paused: map[string]bool{}}
}

func (f *fakeSettings) IsPaused(ctx context.Context, tenantID string) (bool, error) {
	return f.paused[repository.GlobalScope] || f.paused[tenantID], nil
}

func (f *fakeSettings) SetPaused(ctx context.Context, scope string, paused bool) error {
	f.paused[scope] = paused
	return nil
}

type fakeSuppressions struct {
	suppressed map[string]bool
	dnc        map[string]bool
}

func newFakeSuppressions() *fakeSuppressions {
	return &fakeSuppressions{suppressed: map[string]bool{}, dnc: map[string]bool{}}
}

func (f *fakeSuppressions) Create(ctx context.Context, s *model.Suppression) error {
	f.suppressed[s.TenantID+"|"+s.Phone] = true
	return nil
}

func (f *fakeSuppressions) AddDnc(ctx context.Context, e *model.DncEntry) (bool, error) {
	key := e.TenantID + "|" + e.Phone
	if f.dnc[key] {
		return false, nil
	}
	f.dnc[key] = true
	return true, nil
}

func (f *fakeSuppressions) IsSuppressed(ctx context.Context, tenantID, phone string) (bool, error) {
	key := tenantID + "|" + phone
	return f.suppressed[key] || f.dnc[key], nil
}

type fakeMessages struct {
	messages []*model.Message
}

func (f *fakeMessages) Create(ctx context.Context, m *model.Message) error {
	f.messages = append(f.messages, m)
	return nil
}

type fakeInvoices struct {
	invoices map[string]*model.Invoice
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{invoices: map[string]*model.Invoice{}}
}

func (f *fakeInvoices) Upsert(ctx context.Context, inv *model.Invoice) error {
	f.invoices[inv.ID] = inv
	return nil
}

func (f *fakeInvoices) ListByTenant(ctx context.Context, tenantID string) ([]*model.Invoice, error) {
	out := []*model.Invoice{}
	for _, inv := range f.invoices {
		if inv.TenantID == tenantID {
			out = append(out, inv)
		}
	}
	return out, nil
}

// --- Mock Providers ---

type fakeVoice struct {
	started  []provider.StartCallRequest
	startErr error
	callID   string
}

func (f *fakeVoice) ConfigureAgent(ctx context.Context, profile provider.AgentProfile) (string, error) {
	return "agent_" + profile.Name, nil
}

func (f *fakeVoice) StartCall(ctx context.Context, req provider.StartCallRequest) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, req)
	if f.callID != "" {
		return f.callID, nil
	}
	return "call_1", nil
}

func (f *fakeVoice) EndCall(ctx context.Context, callID string) error { return nil }

type fakeCRM struct {
	gated    bool
	personID int64
	err      error
	notes    []string
	tasks    []string
}

func (f *fakeCRM) UpsertLead(ctx context.Context, lead provider.CRMLead) (provider.CRMResult, error) {
	if f.gated {
		return provider.CRMResult{Gated: true}, nil
	}
	return provider.CRMResult{OK: true, PersonID: f.personID}, nil
}

func (f *fakeCRM) AddNote(ctx context.Context, personID int64, text string) (provider.CRMResult, error) {
	if f.err != nil {
		return provider.CRMResult{}, f.err
	}
	if f.gated {
		return provider.CRMResult{Gated: true}, nil
	}
	f.notes = append(f.notes, text)
	return provider.CRMResult{OK: true, PersonID: personID}, nil
}

func (f *fakeCRM) CreateTask(ctx context.Context, personID int64, subject string) (provider.CRMResult, error) {
	if f.err != nil {
		return provider.CRMResult{}, f.err
	}
	if f.gated {
		return provider.CRMResult{Gated: true}, nil
	}
	f.tasks = append(f.tasks, subject)
	return provider.CRMResult{OK: true, PersonID: personID}, nil
}

type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) SendSMS(ctx context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, to+": "+body)
	return "SM_out", nil
}

// --- helpers ---

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func newUsageService(usage *fakeUsage, audit *fakeAudit, tenants *fakeTenants, settings service.UsageSettings, now time.Time) *service.UsageService {
	return &service.UsageService{
		UsageRepo:  usage,
		AuditRepo:  audit,
		TenantRepo: tenants,
		Tx:         &fakeTx{},
		Settings:   settings,
		Log:        logging.Discard(),
		Now:        fixedClock(now),
	}
}

func seedUsage(f *fakeUsage, tenantID string, kind model.UsageKind, amount int, at time.Time) {
	from, to := model.MonthWindow(at)
	f.records = append(f.records, &model.UsageRecord{
		ID: "seed", TenantID: tenantID, Kind: kind, Amount: amount, PeriodStart: from, PeriodEnd: to, CreatedAt: at,
	})
}
