package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  string        `env:"CORS_ORIGINS"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"200"`

	// Per-IP limit on the upload endpoints. Zero disables it.
	UploadRateLimit float64 `env:"UPLOAD_RATE_LIMIT" envDefault:"0.2"`
	UploadRateBurst int     `env:"UPLOAD_RATE_BURST" envDefault:"3"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Speech-to-text
	STTProvider     string        `env:"STT_PROVIDER" envDefault:"assemblyai"`
	STTTimeout      time.Duration `env:"STT_TIMEOUT" envDefault:"10m"`
	STTLanguage     string        `env:"STT_LANGUAGE"`
	PreprocessAudio bool          `env:"PREPROCESS_AUDIO" envDefault:"false"`

	AssemblyAIKey     string        `env:"ASSEMBLYAI_API_KEY"`
	AssemblyAIURL     string        `env:"ASSEMBLYAI_URL" envDefault:"https://api.assemblyai.com"`
	AssemblyAIPoll    time.Duration `env:"ASSEMBLYAI_POLL_INTERVAL" envDefault:"3s"`
	OpenAIKey         string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL"`
	OpenAISTTModel    string        `env:"OPENAI_STT_MODEL" envDefault:"whisper-1"`
	WhisperURL        string        `env:"WHISPER_URL"`
	WhisperModel      string        `env:"WHISPER_MODEL"`
	ElevenLabsKey     string        `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel   string        `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`
	ElevenLabsKeyterm string        `env:"ELEVENLABS_KEYTERMS"`
	DeepInfraKey      string        `env:"DEEPINFRA_API_KEY"`
	DeepInfraModel    string        `env:"DEEPINFRA_MODEL" envDefault:"openai/whisper-large-v3-turbo"`

	// Moderation: an external service when ModerationURL is set, otherwise the
	// built-in engine backed by OpenAI.
	ModerationURL          string        `env:"MODERATION_URL"`
	ModerationTimeout      time.Duration `env:"MODERATION_TIMEOUT" envDefault:"5m"`
	ModerationModel        string        `env:"MODERATION_MODEL" envDefault:"omni-moderation-latest"`
	MisinfoModel           string        `env:"MISINFO_MODEL" envDefault:"gpt-4o"`
	ModerationChunkSize    int           `env:"MODERATION_CHUNK_SIZE" envDefault:"600"`
	ModerationChunkOverlap int           `env:"MODERATION_CHUNK_OVERLAP" envDefault:"100"`
	ModerationThreshold    float64       `env:"MODERATION_THRESHOLD" envDefault:"0.8"`
	ModerationWorkers      int           `env:"MODERATION_WORKERS" envDefault:"5"`
	ModerationMisinfo      bool          `env:"MODERATION_CHECK_MISINFO" envDefault:"true"`

	// Automation webhook
	MakeWebhookURL   string        `env:"MAKE_WEBHOOK_URL"`
	WebhookWorkers   int           `env:"WEBHOOK_WORKERS" envDefault:"2"`
	WebhookQueueSize int           `env:"WEBHOOK_QUEUE_SIZE" envDefault:"100"`
	WebhookTimeout   time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"15s"`

	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"8"`
	DatabaseMinConns int32  `env:"DATABASE_MIN_CONNS" envDefault:"1"`

	AudioDir     string `env:"AUDIO_DIR" envDefault:"./audio"`
	ArchiveAudio bool   `env:"ARCHIVE_AUDIO" envDefault:"false"`
	S3           S3Config

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"podcheck"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"podcheck"`

	WatchDir   string `env:"WATCH_DIR"`
	WatchEmail string `env:"WATCH_EMAIL"`
}

// S3Config holds the optional object store used for the audio archive.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Prefix    string `env:"S3_PREFIX"`

	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether S3 storage is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// CORSOriginList splits CORS_ORIGINS on commas.
func (c *Config) CORSOriginList() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	STTProvider   string
	ModerationURL string
	WatchDir      string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.STTProvider != "" {
		cfg.STTProvider = overrides.STTProvider
	}
	if overrides.ModerationURL != "" {
		cfg.ModerationURL = overrides.ModerationURL
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ModerationURL == "" && c.OpenAIKey == "" {
		return fmt.Errorf("either MODERATION_URL or OPENAI_API_KEY must be set")
	}
	if c.ModerationChunkOverlap >= c.ModerationChunkSize {
		return fmt.Errorf("MODERATION_CHUNK_OVERLAP (%d) must be smaller than MODERATION_CHUNK_SIZE (%d)",
			c.ModerationChunkOverlap, c.ModerationChunkSize)
	}
	if c.WatchDir != "" && c.WatchEmail == "" {
		return fmt.Errorf("WATCH_EMAIL is required when WATCH_DIR is set")
	}
	return nil
}
