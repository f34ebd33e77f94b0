// Package moderation produces moderation responses for transcripts, either by
// calling an external moderation service or by running the checks in-process.
package moderation

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

// Moderator turns a transcript into a moderation response.
type Moderator interface {
	Moderate(ctx context.Context, transcript string) (*report.ModerationResponse, error)
}

// Client calls an external moderation service that accepts
// {"transcript": "..."} and answers with a moderation response.
// Implements the Moderator interface.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a moderation service client.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type moderationRequest struct {
	Transcript string `json:"transcript"`
}

// Moderate posts the transcript and decodes the response.
func (c *Client) Moderate(ctx context.Context, transcript string) (*report.ModerationResponse, error) {
	payload, err := json.Marshal(moderationRequest{Transcript: transcript})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("moderation service error (status %d): %s", resp.StatusCode, string(body))
	}

	return report.DecodeModeration(body)
}
