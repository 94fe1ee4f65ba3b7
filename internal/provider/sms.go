// internal/provider/sms.go
package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// TwilioClient sends messages through a Twilio messaging service.
type TwilioClient struct {
	accountSID          string
	authToken           string
	messagingServiceSID string
	baseURL             string
	http                *http.Client
}

var _ SMSSender = (*TwilioClient)(nil)

// NewTwilioClient returns nil unless account, token and messaging service are all set.
func NewTwilioClient(accountSID, authToken, messagingServiceSID, baseURL string) *TwilioClient {
	if accountSID == "" || authToken == "" || messagingServiceSID == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &TwilioClient{
		accountSID:          accountSID,
		authToken:           authToken,
		messagingServiceSID: messagingServiceSID,
		baseURL:             strings.TrimRight(baseURL, "/"),
		http:                newHTTPClient(),
	}
}

func (c *TwilioClient) SendSMS(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("MessagingServiceSid", c.messagingServiceSID)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio - SendSMS - http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	var out struct {
		SID string `json:"sid"`
	}
	if err := send(c.http, "twilio", req, &out); err != nil {
		return "", err
	}
	return out.SID, nil
}
