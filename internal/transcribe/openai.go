package transcribe

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient transcribes through the OpenAI audio API.
// Implements the Provider interface.
type OpenAIClient struct {
	model  string
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI transcription client. baseURL may point at
// any OpenAI-compatible gateway; empty uses api.openai.com.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIClient{
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider name.
func (oc *OpenAIClient) Name() string { return "openai" }

// Model returns the configured model identifier.
func (oc *OpenAIClient) Model() string { return oc.model }

// Transcribe sends the audio to /v1/audio/transcriptions.
func (oc *OpenAIClient) Transcribe(ctx context.Context, audio Audio, opts TranscribeOpts) (*Response, error) {
	req := openai.AudioRequest{
		Model:       oc.model,
		FilePath:    audio.Filename,
		Reader:      bytes.NewReader(audio.Data),
		Prompt:      opts.Prompt,
		Temperature: float32(opts.Temperature),
		Language:    opts.Language,
		Format:      openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	}

	resp, err := oc.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	var words []Word
	if len(resp.Words) > 0 {
		words = make([]Word, len(resp.Words))
		for i, w := range resp.Words {
			words[i] = Word{Word: w.Word, Start: w.Start, End: w.End}
		}
	}

	return &Response{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Words:    words,
	}, nil
}
