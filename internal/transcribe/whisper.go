package transcribe

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// WhisperClient calls a self-hosted OpenAI-compatible /v1/audio/transcriptions
// endpoint (speaches, faster-whisper-server, whisper.cpp server).
type WhisperClient struct {
	url    string
	model  string
	client *http.Client
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

func NewWhisperClient(url, model string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (wc *WhisperClient) Name() string  { return "whisper" }
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends only non-default parameters so servers that reject unknown
// fields still work.
func (wc *WhisperClient) Transcribe(ctx context.Context, audio Audio, opts TranscribeOpts) (*Response, error) {
	var temperature string
	if opts.Temperature > 0 {
		temperature = strconv.FormatFloat(opts.Temperature, 'f', 2, 64)
	}

	var result whisperResponse
	err := postAudio(ctx, wc.client, "whisper", wc.url, nil, "file", audio, []field{
		{"model", wc.model},
		{"language", opts.Language},
		{"temperature", temperature},
		{"prompt", opts.Prompt},
		{"hotwords", opts.Hotwords},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "word"},
	}, &result)
	if err != nil {
		return nil, err
	}

	words := make([]Word, 0, len(result.Words))
	for _, w := range result.Words {
		words = append(words, Word{Word: w.Word, Start: w.Start, End: w.End})
	}
	return &Response{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Words:    words,
	}, nil
}
