package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/snarg/podcheck"
	"github.com/snarg/podcheck/internal/api"
	"github.com/snarg/podcheck/internal/config"
	"github.com/snarg/podcheck/internal/database"
	"github.com/snarg/podcheck/internal/ingest"
	"github.com/snarg/podcheck/internal/metrics"
	"github.com/snarg/podcheck/internal/moderation"
	"github.com/snarg/podcheck/internal/mqttclient"
	"github.com/snarg/podcheck/internal/pipeline"
	"github.com/snarg/podcheck/internal/storage"
	"github.com/snarg/podcheck/internal/transcribe"
	"github.com/snarg/podcheck/internal/webhook"
)

func newServeCommand(g *globalFlags) *cobra.Command {
	var o config.Overrides
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.EnvFile = g.envFile
			o.LogLevel = g.logLevel
			return runServe(cmd.Context(), o)
		},
	}
	cmd.Flags().StringVar(&o.HTTPAddr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	cmd.Flags().StringVar(&o.DatabaseURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	cmd.Flags().StringVar(&o.STTProvider, "stt-provider", "", "Transcription provider (overrides STT_PROVIDER)")
	cmd.Flags().StringVar(&o.ModerationURL, "moderation-url", "", "Remote moderation service (overrides MODERATION_URL)")
	cmd.Flags().StringVar(&o.WatchDir, "watch-dir", "", "Directory to watch for new audio (overrides WATCH_DIR)")
	return cmd
}

func runServe(parent context.Context, o config.Overrides) error {
	startTime := time.Now()

	cfg, err := config.Load(o)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(os.Stdout, cfg.LogLevel)
	log.Info().Str("version", version).Msg("podcheck starting")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	var (
		store database.ReportStore
		db    *database.DB
		pool  *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(ctx, database.Options{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DatabaseMaxConns,
			MinConns: cfg.DatabaseMinConns,
			Log:      log.With().Str("component", "database").Logger(),
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if err := db.InitSchema(ctx, podcheck.SchemaSQL); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		store, pool = db, db.Pool
	} else {
		log.Warn().Msg("DATABASE_URL not set, keeping reports in memory")
		store = database.NewMemoryStore(database.DefaultMemoryCapacity)
	}

	// Audio archive
	var archive storage.AudioStore
	if cfg.ArchiveAudio {
		archive, err = storage.New(cfg.S3, cfg.AudioDir, log.With().Str("component", "storage").Logger())
		if err != nil {
			return fmt.Errorf("audio storage: %w", err)
		}
	}

	// Transcription
	stt, err := transcribe.New(transcribe.Options{
		Provider:           cfg.STTProvider,
		Timeout:            cfg.STTTimeout,
		AssemblyAIKey:      cfg.AssemblyAIKey,
		AssemblyAIURL:      cfg.AssemblyAIURL,
		AssemblyAIPoll:     cfg.AssemblyAIPoll,
		OpenAIKey:          cfg.OpenAIKey,
		OpenAIBaseURL:      cfg.OpenAIBaseURL,
		OpenAIModel:        cfg.OpenAISTTModel,
		WhisperURL:         cfg.WhisperURL,
		WhisperModel:       cfg.WhisperModel,
		ElevenLabsKey:      cfg.ElevenLabsKey,
		ElevenLabsModel:    cfg.ElevenLabsModel,
		ElevenLabsKeyterms: cfg.ElevenLabsKeyterm,
		DeepInfraKey:       cfg.DeepInfraKey,
		DeepInfraModel:     cfg.DeepInfraModel,
	})
	if err != nil {
		return err
	}
	log.Info().Str("provider", stt.Name()).Str("model", stt.Model()).Msg("transcription configured")
	if cfg.PreprocessAudio {
		if !transcribe.CheckFFmpeg() {
			log.Warn().Msg("ffmpeg not found, audio preprocessing disabled")
			cfg.PreprocessAudio = false
		}
	}

	// Moderation
	mod := newModerator(cfg, log.With().Str("component", "moderation").Logger())

	// Webhook
	var sender webhook.Sender
	if cfg.MakeWebhookURL != "" {
		sender = webhook.NewMakeClient(cfg.MakeWebhookURL, cfg.WebhookTimeout)
	}
	dispatcher := webhook.NewDispatcher(webhook.DispatcherOptions{
		Sender:    sender,
		Workers:   cfg.WebhookWorkers,
		QueueSize: cfg.WebhookQueueSize,
		Timeout:   cfg.WebhookTimeout,
		OnOutcome: func(outcome string) {
			metrics.WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()
		},
		Log: log.With().Str("component", "webhook").Logger(),
	})
	dispatcher.Start()

	prometheus.MustRegister(metrics.NewCollector(pool, dispatcher))

	// MQTT
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
		defer mqtt.Close()
	}

	opts := pipeline.Options{
		Transcriber: stt,
		Moderator:   mod,
		Store:       store,
		Archive:     archive,
		Dispatcher:  dispatcher,
		Preprocess:  cfg.PreprocessAudio,
		Language:    cfg.STTLanguage,
		Log:         log.With().Str("component", "pipeline").Logger(),
	}
	if mqtt != nil {
		opts.Publisher = mqtt
	}
	svc := pipeline.New(opts)

	health := api.HealthDeps{Webhook: dispatcher, STTProvider: stt.Name()}
	if db != nil {
		health.DB = db
	}
	if mqtt != nil {
		health.MQTT = mqtt
	}

	// Watch folder
	var watcher *ingest.Watcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewWatcher(ingest.WatcherOptions{
			Dir:       cfg.WatchDir,
			Email:     cfg.WatchEmail,
			Processor: svc,
			Log:       log.With().Str("component", "watcher").Logger(),
		})
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		health.Watcher = watcher
	}

	web, err := fs.Sub(podcheck.WebFiles, "web")
	if err != nil {
		return err
	}

	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Processor: svc,
		Moderator: servedModerator(mod),
		Store:     store,
		Archive:   archive,
		Health:    health,
		WebFS:     web,
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if watcher != nil {
		watcher.Stop()
	}
	svc.Wait()
	dispatcher.Stop()

	log.Info().Msg("podcheck stopped")
	return serveErr
}

// servedModerator picks what /process-transcript exposes. Only the built-in
// engine is served; proxying a remote service could call back into this
// instance.
func servedModerator(m moderation.Moderator) moderation.Moderator {
	if e, ok := m.(*moderation.Engine); ok {
		return e
	}
	return nil
}

func newModerator(cfg *config.Config, log zerolog.Logger) moderation.Moderator {
	if cfg.ModerationURL != "" {
		log.Info().Str("url", cfg.ModerationURL).Msg("using remote moderation service")
		return moderation.NewClient(cfg.ModerationURL, cfg.ModerationTimeout)
	}
	log.Info().Str("model", cfg.ModerationModel).Msg("using built-in moderation engine")
	return moderation.NewOpenAIEngine(cfg.OpenAIKey, cfg.OpenAIBaseURL, moderation.EngineOptions{
		ModerationModel:     cfg.ModerationModel,
		ChatModel:           cfg.MisinfoModel,
		ChunkSize:           cfg.ModerationChunkSize,
		ChunkOverlap:        cfg.ModerationChunkOverlap,
		Threshold:           cfg.ModerationThreshold,
		Workers:             cfg.ModerationWorkers,
		CheckMisinformation: cfg.ModerationMisinfo,
		Log:                 log,
	})
}
