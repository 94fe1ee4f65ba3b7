// internal/handler/webhook_handler.go
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/revive-backend/internal/service"
)

const maxWebhookBody = 1 << 20

type WebhookProcessor interface {
	HandleVoice(ctx context.Context, ev service.VoiceEvent) (*service.WebhookAck, error)
	HandleSMS(ctx context.Context, ev service.SMSEvent) (*service.WebhookAck, error)
	HandleBilling(ctx context.Context, ev service.BillingEvent) (*service.WebhookAck, error)
}

// WebhookHandler verifies and decodes provider callbacks before handing them to the service.
type WebhookHandler struct {
	Service         WebhookProcessor
	PublicBaseURL   string
	TwilioAuthToken string
	StripeSecret    string
	StripeTolerance time.Duration
	Log             *slog.Logger
	Now             func() time.Time
}

func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/voice", h.Voice)
	r.Post("/sms", h.SMS)
	r.Post("/billing", h.Billing)
	return r
}

func (h *WebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

type voiceCaller struct {
	Phone string `json:"phone"`
}

type voicePayload struct {
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	CallID    string          `json:"call_id"`
	ID        string          `json:"id"`
	CallIDAlt string          `json:"callId"`
	EventID   string          `json:"event_id"`
	TurnID    any             `json:"turn_id"`
	Timestamp any             `json:"timestamp"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Text      string          `json:"text"`
	Caller    voiceCaller     `json:"caller"`
	Summary   json.RawMessage `json:"summary"`
	Metadata  map[string]any  `json:"metadata"`
}

func (h *WebhookHandler) Voice(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		WriteMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	var p voicePayload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		WriteMessage(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	ev := service.VoiceEvent{
		Type:        firstNonEmpty(p.Type, p.Event, "unknown"),
		CallID:      firstNonEmpty(p.CallID, p.ID, p.CallIDAlt, "unknown"),
		EventID:     p.EventID,
		TurnID:      scalar(p.TurnID),
		Timestamp:   scalar(p.Timestamp),
		From:        p.From,
		To:          p.To,
		Text:        p.Text,
		CallerPhone: p.Caller.Phone,
		Summary:     p.Summary,
		Metadata:    map[string]string{},
	}
	if ev.EventID == "" && ev.TurnID == "" && ev.Timestamp == "" {
		ev.Digest = payloadDigest(raw)
	}
	if len(ev.Summary) == 0 || string(ev.Summary) == "null" {
		ev.Summary = raw
	}
	for k, v := range p.Metadata {
		ev.Metadata[k] = scalar(v)
	}

	ack, err := h.Service.HandleVoice(r.Context(), ev)
	if err != nil {
		WriteError(w, h.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, ack)
}

func (h *WebhookHandler) SMS(w http.ResponseWriter, r *http.Request) {
	if h.TwilioAuthToken == "" {
		WriteMessage(w, http.StatusNotImplemented, "Twilio not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		WriteMessage(w, http.StatusBadRequest, "invalid form body")
		return
	}

	signedURL := strings.TrimRight(h.PublicBaseURL, "/") + "/webhooks/sms"
	if err := VerifyTwilioSignature(signedURL, r.PostForm, h.TwilioAuthToken, r.Header.Get("X-Twilio-Signature")); err != nil {
		h.Log.Warn("sms webhook signature rejected", "remote", r.RemoteAddr)
		WriteError(w, h.Log, err)
		return
	}

	ack, err := h.Service.HandleSMS(r.Context(), service.SMSEvent{
		MessageSID: r.PostForm.Get("MessageSid"),
		From:       r.PostForm.Get("From"),
		To:         r.PostForm.Get("To"),
		Body:       r.PostForm.Get("Body"),
	})
	if err != nil {
		WriteError(w, h.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, ack)
}

func (h *WebhookHandler) Billing(w http.ResponseWriter, r *http.Request) {
	if h.StripeSecret == "" {
		WriteMessage(w, http.StatusNotImplemented, "Stripe not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		WriteMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := VerifyStripeSignature(payload, r.Header.Get("Stripe-Signature"), h.StripeSecret, h.StripeTolerance, h.now()); err != nil {
		h.Log.Warn("billing webhook signature rejected", "err", err)
		WriteError(w, h.Log, err)
		return
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil || event.ID == "" {
		WriteMessage(w, http.StatusBadRequest, "invalid event")
		return
	}

	ack, err := h.Service.HandleBilling(r.Context(), service.BillingEvent{
		ID:     event.ID,
		Type:   event.Type,
		Object: event.Data.Object,
		Raw:    payload,
	})
	if err != nil {
		WriteError(w, h.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"received": true, "duplicate": ack.Duplicate})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
