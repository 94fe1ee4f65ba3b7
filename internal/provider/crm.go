// internal/provider/crm.go
package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

type CRMLead struct {
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Emails    []string `json:"emails,omitempty"`
	Phones    []string `json:"phones,omitempty"`
}

// CRMResult is returned instead of an error when credentials are absent (Gated).
type CRMResult struct {
	OK       bool
	Gated    bool
	PersonID int64
}

type CRMClient interface {
	UpsertLead(ctx context.Context, lead CRMLead) (CRMResult, error)
	AddNote(ctx context.Context, personID int64, text string) (CRMResult, error)
	CreateTask(ctx context.Context, personID int64, subject string) (CRMResult, error)
}

// FollowUpBossClient is a CRMClient for the Follow Up Boss API.
type FollowUpBossClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	now     func() time.Time
}

var _ CRMClient = (*FollowUpBossClient)(nil)

func NewFollowUpBossClient(apiKey, baseURL string) *FollowUpBossClient {
	if baseURL == "" {
		baseURL = "https://api.followupboss.com/v1"
	}
	return &FollowUpBossClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(),
		now:     time.Now,
	}
}

func (c *FollowUpBossClient) Configured() bool {
	return c.apiKey != ""
}

func (c *FollowUpBossClient) UpsertLead(ctx context.Context, lead CRMLead) (CRMResult, error) {
	return c.post(ctx, "/people", lead)
}

func (c *FollowUpBossClient) AddNote(ctx context.Context, personID int64, text string) (CRMResult, error) {
	return c.post(ctx, "/notes", map[string]any{"personId": personID, "body": text})
}

func (c *FollowUpBossClient) CreateTask(ctx context.Context, personID int64, subject string) (CRMResult, error) {
	return c.post(ctx, "/tasks", map[string]any{
		"personId": personID,
		"name":     subject,
		"dueDate":  c.now().UTC().Format("2006-01-02"),
	})
}

func (c *FollowUpBossClient) post(ctx context.Context, path string, body any) (CRMResult, error) {
	if !c.Configured() {
		return CRMResult{Gated: true}, nil
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.apiKey + ":"))
	headers := map[string]string{"Authorization": "Basic " + auth}

	var out struct {
		ID int64 `json:"id"`
	}
	if err := doJSON(ctx, c.http, "fub", http.MethodPost, c.baseURL+path, headers, body, &out); err != nil {
		return CRMResult{}, err
	}
	return CRMResult{OK: true, PersonID: out.ID}, nil
}
