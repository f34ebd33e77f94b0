package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAssemblyAIURL = "https://api.assemblyai.com"

// AssemblyAIClient calls the AssemblyAI v2 REST API: upload the audio, create a
// transcript job, then poll until it finishes.
// Implements the Provider interface.
type AssemblyAIClient struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	timeout      time.Duration
	client       *http.Client
}

type assemblyUploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type assemblyTranscriptRequest struct {
	AudioURL     string   `json:"audio_url"`
	LanguageCode string   `json:"language_code,omitempty"`
	WordBoost    []string `json:"word_boost,omitempty"`
}

// assemblyTranscript is the transcript resource. Word times are milliseconds.
type assemblyTranscript struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"` // queued, processing, completed, error
	Text          string         `json:"text"`
	LanguageCode  string         `json:"language_code"`
	AudioDuration float64        `json:"audio_duration"`
	Words         []assemblyWord `json:"words"`
	Error         string         `json:"error"`
}

type assemblyWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewAssemblyAIClient creates a new AssemblyAI client. timeout bounds each HTTP
// call; the overall wait is bounded by the caller's context.
func NewAssemblyAIClient(baseURL, apiKey string, pollInterval, timeout time.Duration) *AssemblyAIClient {
	if baseURL == "" {
		baseURL = defaultAssemblyAIURL
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &AssemblyAIClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		pollInterval: pollInterval,
		timeout:      timeout,
		client:       &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (a *AssemblyAIClient) Name() string { return "assemblyai" }

// Model returns the configured model identifier.
func (a *AssemblyAIClient) Model() string { return "best" }

// Transcribe uploads the audio and waits for the transcript.
func (a *AssemblyAIClient) Transcribe(ctx context.Context, audio Audio, opts TranscribeOpts) (*Response, error) {
	uploadURL, err := a.upload(ctx, audio.Data)
	if err != nil {
		return nil, err
	}

	reqBody := assemblyTranscriptRequest{
		AudioURL:     uploadURL,
		LanguageCode: opts.Language,
		WordBoost:    splitTerms(opts.Hotwords),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode transcript request: %w", err)
	}

	var tr assemblyTranscript
	if err := a.do(ctx, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(payload), &tr); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		switch tr.Status {
		case "completed":
			return tr.toResponse(), nil
		case "error":
			return nil, fmt.Errorf("assemblyai transcript %s failed: %s", tr.ID, tr.Error)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("assemblyai transcript %s: %w", tr.ID, ctx.Err())
		case <-ticker.C:
		}

		id := tr.ID
		if err := a.do(ctx, http.MethodGet, "/v2/transcript/"+id, "", nil, &tr); err != nil {
			return nil, err
		}
	}
}

func (a *AssemblyAIClient) upload(ctx context.Context, data []byte) (string, error) {
	var up assemblyUploadResponse
	if err := a.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", bytes.NewReader(data), &up); err != nil {
		return "", err
	}
	if up.UploadURL == "" {
		return "", fmt.Errorf("assemblyai upload returned no upload_url")
	}
	return up.UploadURL, nil
}

func (a *AssemblyAIClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("assemblyai request: %w", err)
	}
	return decodeReply("assemblyai", resp, out)
}

func (t *assemblyTranscript) toResponse() *Response {
	var words []Word
	if len(t.Words) > 0 {
		words = make([]Word, len(t.Words))
		for i, w := range t.Words {
			words[i] = Word{Word: w.Text, Start: w.Start / 1000.0, End: w.End / 1000.0}
		}
	}
	return &Response{
		Text:     t.Text,
		Language: t.LanguageCode,
		Duration: t.AudioDuration,
		Words:    words,
	}
}
