// internal/handler/response.go
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteError maps application errors onto HTTP statuses. Unknown errors are
// logged and reported as 500 without leaking their text.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		notFound      *appErrors.ErrNotFound
		notConfigured *appErrors.ErrNotConfigured
		limit         *appErrors.ErrUsageLimitExceeded
	)

	switch {
	case errors.As(err, &limit):
		WriteJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":            limit.Error(),
			"code":             limit.Code(),
			"overage_estimate": limit.OverageEstimate,
			"details":          limit.Details,
		})
	case errors.As(err, &notConfigured):
		WriteMessage(w, http.StatusNotImplemented, notConfigured.Error())
	case errors.As(err, &notFound):
		WriteMessage(w, http.StatusNotFound, notFound.Error())
	case errors.Is(err, appErrors.ErrInvalidSignature):
		WriteMessage(w, http.StatusUnauthorized, err.Error())
	default:
		log.Error("request failed", "err", err)
		WriteMessage(w, http.StatusInternalServerError, "internal error")
	}
}
