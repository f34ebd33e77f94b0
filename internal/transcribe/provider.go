package transcribe

import (
	"context"
	"fmt"
	"time"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audio Audio, opts TranscribeOpts) (*Response, error)
	Name() string  // "assemblyai", "openai", "whisper", "elevenlabs", "deepinfra"
	Model() string // model identifier for logs
}

// Audio is an uploaded recording held in memory.
type Audio struct {
	Filename    string
	ContentType string
	Data        []byte
}

// TranscribeOpts are per-request options. Zero values are omitted from requests.
type TranscribeOpts struct {
	Language    string
	Prompt      string // domain vocabulary
	Hotwords    string // comma-separated boost terms
	Temperature float64
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds
	Words    []Word  // nil if provider doesn't support word timestamps
}

// Word is a timestamped word from any STT provider.
type Word struct {
	Word  string
	Start float64 // seconds
	End   float64 // seconds
}

// Options selects and configures a provider.
type Options struct {
	Provider string
	Timeout  time.Duration

	AssemblyAIKey  string
	AssemblyAIURL  string
	AssemblyAIPoll time.Duration

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	WhisperURL   string
	WhisperModel string

	ElevenLabsKey      string
	ElevenLabsModel    string
	ElevenLabsKeyterms string

	DeepInfraKey   string
	DeepInfraModel string
}

// New builds the provider named in opts.
func New(opts Options) (Provider, error) {
	switch opts.Provider {
	case "assemblyai", "":
		if opts.AssemblyAIKey == "" {
			return nil, fmt.Errorf("ASSEMBLYAI_API_KEY is required for the assemblyai provider")
		}
		return NewAssemblyAIClient(opts.AssemblyAIURL, opts.AssemblyAIKey, opts.AssemblyAIPoll, opts.Timeout), nil
	case "openai":
		if opts.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAIClient(opts.OpenAIKey, opts.OpenAIBaseURL, opts.OpenAIModel), nil
	case "whisper":
		if opts.WhisperURL == "" {
			return nil, fmt.Errorf("WHISPER_URL is required for the whisper provider")
		}
		return NewWhisperClient(opts.WhisperURL, opts.WhisperModel, opts.Timeout), nil
	case "elevenlabs":
		if opts.ElevenLabsKey == "" {
			return nil, fmt.Errorf("ELEVENLABS_API_KEY is required for the elevenlabs provider")
		}
		return NewElevenLabsClient(opts.ElevenLabsKey, opts.ElevenLabsModel, opts.ElevenLabsKeyterms, opts.Timeout), nil
	case "deepinfra":
		if opts.DeepInfraKey == "" {
			return nil, fmt.Errorf("DEEPINFRA_API_KEY is required for the deepinfra provider")
		}
		return NewDeepInfraClient(opts.DeepInfraKey, opts.DeepInfraModel, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", opts.Provider)
	}
}
