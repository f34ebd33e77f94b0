package transcribe

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraClient calls DeepInfra's native inference API for hosted Whisper
// models.
type DeepInfraClient struct {
	baseURL string
	apiKey  string
	model   string // e.g. openai/whisper-large-v3-turbo
	client  *http.Client
}

type timedText struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type deepInfraResponse struct {
	Text     string      `json:"text"`
	Language string      `json:"language"`
	Duration float64     `json:"duration"`
	Words    []timedText `json:"words"` // "text", not "word" as in OpenAI
	Segments []timedText `json:"segments"`
}

func NewDeepInfraClient(apiKey, model string, timeout time.Duration) *DeepInfraClient {
	return &DeepInfraClient{
		baseURL: deepInfraBaseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (di *DeepInfraClient) Name() string  { return "deepinfra" }
func (di *DeepInfraClient) Model() string { return di.model }

// Transcribe uploads under the "audio" field, which is what the inference API
// expects instead of OpenAI's "file".
func (di *DeepInfraClient) Transcribe(ctx context.Context, audio Audio, opts TranscribeOpts) (*Response, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+di.apiKey)

	var result deepInfraResponse
	err := postAudio(ctx, di.client, "deepinfra", di.baseURL+di.model, header, "audio", audio, []field{
		{"language", opts.Language},
		{"initial_prompt", opts.Prompt},
	}, &result)
	if err != nil {
		return nil, err
	}

	words := make([]Word, 0, len(result.Words))
	for _, w := range result.Words {
		words = append(words, Word{Word: w.Text, Start: w.Start, End: w.End})
	}
	if len(words) == 0 {
		words = spreadSegments(result.Segments)
	}
	return &Response{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Words:    words,
	}, nil
}

// spreadSegments approximates word timings from segment timings by splitting
// each segment's span evenly across its words.
func spreadSegments(segments []timedText) []Word {
	var words []Word
	for _, seg := range segments {
		tokens := strings.Fields(seg.Text)
		if len(tokens) == 0 {
			continue
		}
		step := (seg.End - seg.Start) / float64(len(tokens))
		for i, tok := range tokens {
			words = append(words, Word{
				Word:  tok,
				Start: seg.Start + float64(i)*step,
				End:   seg.Start + float64(i+1)*step,
			})
		}
	}
	return words
}
