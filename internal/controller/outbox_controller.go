// internal/controller/outbox_controller.go
package controller

import (
	"log/slog"
	"net/http"

	"github.com/unclebandit/revive-backend/internal/handler"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/queue"
	"github.com/unclebandit/revive-backend/internal/service"
)

type OutboxController struct {
	Outbox   service.Flusher
	Triggers queue.Queue
	Log      *slog.Logger
}

func (c *OutboxController) Flush(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)

	if queryBool(r, "async") && c.Triggers != nil {
		t := model.Trigger{Kind: model.TriggerFlush, Limit: limit}
		if err := c.Triggers.Publish(r.Context(), t); err != nil {
			handler.WriteError(w, c.Log, err)
			return
		}
		handler.WriteJSON(w, http.StatusAccepted, map[string]any{"queued": true, "trigger": t})
		return
	}

	res, err := c.Outbox.Flush(r.Context(), limit)
	if err != nil {
		handler.WriteError(w, c.Log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, res)
}
