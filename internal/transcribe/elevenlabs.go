package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Scribe speech-to-text API.
type ElevenLabsClient struct {
	endpoint string
	apiKey   string
	model    string // scribe_v1 or scribe_v2
	keyterms []string
	client   *http.Client
}

type elevenlabsResponse struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
	Words        []struct {
		Text        string  `json:"text"`
		Type        string  `json:"type"` // word, spacing or audio_event
		StartTimeMs float64 `json:"start_time_ms"`
		EndTimeMs   float64 `json:"end_time_ms"`
	} `json:"words"`
}

// NewElevenLabsClient creates a client. keyterms is a comma-separated list of
// show-specific names (hosts, sponsors) to bias recognition toward.
func NewElevenLabsClient(apiKey, model, keyterms string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		endpoint: elevenLabsSTTEndpoint,
		apiKey:   apiKey,
		model:    model,
		keyterms: splitTerms(keyterms),
		client:   &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabsClient) Name() string  { return "elevenlabs" }
func (el *ElevenLabsClient) Model() string { return el.model }

func (el *ElevenLabsClient) Transcribe(ctx context.Context, audio Audio, opts TranscribeOpts) (*Response, error) {
	header := http.Header{}
	header.Set("xi-api-key", el.apiKey)

	var result elevenlabsResponse
	// no language_code lets Scribe auto-detect
	err := postAudio(ctx, el.client, "elevenlabs", el.endpoint, header, "file", audio, []field{
		{"model_id", el.model},
		{"language_code", opts.Language},
		{"timestamps_granularity", "word"},
		{"keyterms", keytermsJSON(slices.Concat(el.keyterms, splitTerms(opts.Hotwords)))},
	}, &result)
	if err != nil {
		return nil, err
	}

	var words []Word
	for _, w := range result.Words {
		if w.Type != "word" {
			continue
		}
		words = append(words, Word{Word: w.Text, Start: w.StartTimeMs / 1000, End: w.EndTimeMs / 1000})
	}
	return &Response{
		Text:     result.Text,
		Language: result.LanguageCode,
		Words:    words,
	}, nil
}

// keytermsJSON renders terms as [{"text": "..."}], or "" when there are none.
func keytermsJSON(terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	type keyterm struct {
		Text string `json:"text"`
	}
	arr := make([]keyterm, len(terms))
	for i, t := range terms {
		arr[i] = keyterm{Text: t}
	}
	b, _ := json.Marshal(arr)
	return string(b)
}

func splitTerms(raw string) []string {
	var terms []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}
