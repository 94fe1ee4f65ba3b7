// internal/provider/voice.go
package provider

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type AgentProfile struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

type StartCallRequest struct {
	To      string
	From    string
	AgentID string
	Context map[string]string
}

type VoiceProvider interface {
	ConfigureAgent(ctx context.Context, profile AgentProfile) (string, error)
	StartCall(ctx context.Context, req StartCallRequest) (string, error)
	EndCall(ctx context.Context, callID string) error
}

// RetellClient talks to the Retell phone-call API.
type RetellClient struct {
	apiKey     string
	baseURL    string
	webhookURL string
	http       *http.Client
}

var _ VoiceProvider = (*RetellClient)(nil)

// NewRetellClient returns nil when apiKey is empty; callers treat a nil
// provider as not configured.
func NewRetellClient(apiKey, baseURL, webhookURL string) *RetellClient {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = "https://api.retellai.com"
	}
	return &RetellClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		webhookURL: webhookURL,
		http:       newHTTPClient(),
	}
}

// ConfigureAgent derives a stable agent id from the profile name.
func (c *RetellClient) ConfigureAgent(ctx context.Context, profile AgentProfile) (string, error) {
	encoded := hex.EncodeToString([]byte(profile.Name))
	if len(encoded) > 8 {
		encoded = encoded[:8]
	}
	return "agent_" + encoded, nil
}

func (c *RetellClient) StartCall(ctx context.Context, req StartCallRequest) (string, error) {
	metadata := req.Context
	if metadata == nil {
		metadata = map[string]string{}
	}
	body := map[string]any{
		"to_number":   req.To,
		"from_number": req.From,
		"agent_id":    req.AgentID,
		"metadata":    metadata,
		"webhook_url": c.webhookURL,
	}

	var out struct {
		ID     string `json:"id"`
		CallID string `json:"call_id"`
	}
	if err := doJSON(ctx, c.http, "retell", http.MethodPost, c.baseURL+"/v1/phone-calls", c.authHeaders(), body, &out); err != nil {
		return "", err
	}

	switch {
	case out.ID != "":
		return out.ID, nil
	case out.CallID != "":
		return out.CallID, nil
	default:
		return fmt.Sprintf("call_%d", time.Now().UnixMilli()), nil
	}
}

func (c *RetellClient) EndCall(ctx context.Context, callID string) error {
	return doJSON(ctx, c.http, "retell", http.MethodDelete, c.baseURL+"/v1/phone-calls/"+callID, c.authHeaders(), nil, nil)
}

func (c *RetellClient) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}
