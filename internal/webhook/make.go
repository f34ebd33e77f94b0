// Package webhook delivers finished reports to the automation webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snarg/podcheck/internal/report"
)

// Payload is the body posted to the webhook: the report plus the uploader's
// email address.
type Payload struct {
	report.Report
	Email string `json:"email"`
}

// Sender delivers a single payload.
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// MakeClient posts payloads to a Make.com custom webhook.
// Implements the Sender interface.
type MakeClient struct {
	url    string
	client *http.Client
}

// NewMakeClient creates a webhook client for url.
func NewMakeClient(url string, timeout time.Duration) *MakeClient {
	return &MakeClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts p as JSON. Any non-2xx response is an error.
func (m *MakeClient) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook rejected payload (status %d): %s", resp.StatusCode, string(msg))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
