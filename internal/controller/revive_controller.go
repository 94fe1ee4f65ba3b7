// internal/controller/revive_controller.go
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/revive-backend/internal/handler"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/queue"
	"github.com/unclebandit/revive-backend/internal/service"
)

type ReviveScheduler interface {
	AddLeads(ctx context.Context, tenantID string, leads []service.NewLead) ([]*model.ReviveLead, error)
	Enqueue(ctx context.Context, tenantID string, limit int, runAt time.Time) ([]*model.OutreachJob, error)
	Tick(ctx context.Context) (*service.TickResult, error)
}

type PauseToggler interface {
	SetPaused(ctx context.Context, tenantID string, paused bool) error
}

type ReviveController struct {
	Scheduler  ReviveScheduler
	Compliance PauseToggler
	// Triggers is optional; without it async requests run inline.
	Triggers        queue.Queue
	DefaultTenantID string
	Log             *slog.Logger
}

func (c *ReviveController) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/leads", c.AddLeads)
	r.Post("/enqueue", c.Enqueue)
	r.Post("/tick", c.Tick)
	r.Post("/pause", c.Pause)
	r.Post("/resume", c.Resume)
	return r
}

func (c *ReviveController) AddLeads(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID string            `json:"tenant_id"`
		Leads    []service.NewLead `json:"leads"`
	}
	if err := decodeOptional(r, &body); err != nil {
		handler.WriteMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(body.Leads) == 0 {
		handler.WriteMessage(w, http.StatusBadRequest, "leads is required")
		return
	}

	leads, err := c.Scheduler.AddLeads(r.Context(), tenantOr(r, body.TenantID, c.DefaultTenantID), body.Leads)
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}

	handler.WriteJSON(w, http.StatusCreated, map[string]any{
		"inserted": len(leads),
		"rejected": len(body.Leads) - len(leads),
		"leads":    leads,
	})
}

func (c *ReviveController) Enqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID     string `json:"tenant_id"`
		Limit        int    `json:"limit"`
		DelaySeconds int    `json:"delay_seconds"`
	}
	if err := decodeOptional(r, &body); err != nil {
		handler.WriteMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	var runAt time.Time
	if body.DelaySeconds > 0 {
		runAt = time.Now().Add(time.Duration(body.DelaySeconds) * time.Second)
	}

	jobs, err := c.Scheduler.Enqueue(r.Context(), tenantOr(r, body.TenantID, c.DefaultTenantID), body.Limit, runAt)
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]int{"created": len(jobs)})
}

// Tick processes one due job inline, or publishes a tick trigger when async=true.
func (c *ReviveController) Tick(w http.ResponseWriter, r *http.Request) {
	if queryBool(r, "async") && c.Triggers != nil {
		t := model.Trigger{Kind: model.TriggerTick, Limit: queryInt(r, "limit", 1)}
		if err := c.Triggers.Publish(r.Context(), t); err != nil {
			handler.WriteError(w, c.Log, err)
			return
		}
		handler.WriteJSON(w, http.StatusAccepted, map[string]any{"queued": true, "trigger": t})
		return
	}

	res, err := c.Scheduler.Tick(r.Context())
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, res)
}

func (c *ReviveController) Pause(w http.ResponseWriter, r *http.Request) {
	c.setPaused(w, r, true)
}

func (c *ReviveController) Resume(w http.ResponseWriter, r *http.Request) {
	c.setPaused(w, r, false)
}

// setPaused applies globally unless a tenant_id is given.
func (c *ReviveController) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	var body struct {
		TenantID string `json:"tenant_id"`
	}
	if err := decodeOptional(r, &body); err != nil {
		handler.WriteMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	tenantID := tenantOr(r, body.TenantID, "")

	if err := c.Compliance.SetPaused(r.Context(), tenantID, paused); err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}

	c.Log.Info("outreach pause toggled", "paused", paused, "tenant_id", tenantID)
	resp := map[string]any{"paused": paused}
	if tenantID != "" {
		resp["tenant_id"] = tenantID
	}
	handler.WriteJSON(w, http.StatusOK, resp)
}
