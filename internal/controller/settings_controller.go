// internal/controller/settings_controller.go
package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/unclebandit/revive-backend/internal/handler"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/service"
)

type UsageReporter interface {
	Summary(ctx context.Context, tenantID string) (*service.UsageSummary, error)
}

type SettingsManager interface {
	UploadDnc(ctx context.Context, tenantID, csv string) (int, error)
	AuditLogs(ctx context.Context, limit int) ([]*model.AuditLog, error)
	BillingSummary(ctx context.Context, tenantID string) (*service.BillingSummary, error)
}

type SettingsController struct {
	Usage           UsageReporter
	Settings        SettingsManager
	DefaultTenantID string
	Log             *slog.Logger
}

func (c *SettingsController) UsageSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := c.Usage.Summary(r.Context(), tenantOr(r, "", c.DefaultTenantID))
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, summary)
}

func (c *SettingsController) UploadDnc(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID string `json:"tenant_id"`
		CSV      string `json:"csv"`
	}
	if err := decodeOptional(r, &body); err != nil {
		handler.WriteMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	inserted, err := c.Settings.UploadDnc(r.Context(), tenantOr(r, body.TenantID, c.DefaultTenantID), body.CSV)
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]int{"inserted": inserted})
}

func (c *SettingsController) AuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := c.Settings.AuditLogs(r.Context(), queryInt(r, "limit", service.DefaultAuditLimit))
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (c *SettingsController) BillingSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := c.Settings.BillingSummary(r.Context(), tenantOr(r, "", c.DefaultTenantID))
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, summary)
}
