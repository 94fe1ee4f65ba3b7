// internal/provider/http.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
)

const defaultTimeout = 15 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// doJSON sends body as JSON and decodes a 2xx response into out (when non-nil).
// Non-2xx responses become *appErrors.ErrProviderFailure.
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s - doJSON - json.Marshal: %w", provider, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s - doJSON - http.NewRequestWithContext: %w", provider, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return send(client, provider, req, out)
}

func send(client *http.Client, provider string, req *http.Request, out any) error {
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s - send - client.Do: %w", provider, err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s - send - io.ReadAll: %w", provider, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return appErrors.NewProviderFailure(provider, res.StatusCode, string(payload))
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s - send - json.Unmarshal: %w", provider, err)
		}
	}
	return nil
}
