// Package pipeline runs an uploaded episode through transcription, moderation
// and report building, then fans the report out to storage, the webhook and
// MQTT.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/podcheck/internal/audio"
	"github.com/snarg/podcheck/internal/database"
	"github.com/snarg/podcheck/internal/metrics"
	"github.com/snarg/podcheck/internal/moderation"
	"github.com/snarg/podcheck/internal/mqttclient"
	"github.com/snarg/podcheck/internal/report"
	"github.com/snarg/podcheck/internal/storage"
	"github.com/snarg/podcheck/internal/transcribe"
	"github.com/snarg/podcheck/internal/webhook"
)

// ErrUpstream wraps failures of the transcription or moderation services.
var ErrUpstream = errors.New("upstream service failed")

// ErrMissingEmail is returned when an upload has no recipient address.
var ErrMissingEmail = errors.New("email is required")

// Dispatcher queues a payload for background webhook delivery.
type Dispatcher interface {
	Enqueue(p webhook.Payload) error
}

// Publisher announces finished reports.
type Publisher interface {
	Publish(ctx context.Context, s mqttclient.ReportSummary) error
}

// Upload is one episode submitted for checking.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Email       string
	EpisodeName string
	Source      string // "http" or "watch"
}

// Summarize is a transcript that has already been moderated elsewhere.
type Summarize struct {
	Transcript  string
	Moderation  *report.ModerationResponse
	Email       string
	EpisodeName string
	Source      string
}

// Result is what the caller gets back for a processed upload.
type Result struct {
	ReportID   string
	Transcript string
	Moderation *report.ModerationResponse
	Report     *report.Report
	SentToMake bool
}

// Options wires the service. Store, Archive, Dispatcher and Publisher are
// optional.
type Options struct {
	Transcriber transcribe.Provider
	Moderator   moderation.Moderator
	Builder     *report.Builder
	Store       database.ReportStore
	Archive     storage.AudioStore
	Dispatcher  Dispatcher
	Publisher   Publisher
	Preprocess  bool
	Language    string
	Clock       report.Clock
	NewID       func() string
	Log         zerolog.Logger
}

// Service runs the upload pipeline. It is safe for concurrent use.
type Service struct {
	opts Options
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = report.SystemClock{}
	}
	if opts.Builder == nil {
		opts.Builder = report.NewBuilder(opts.Clock)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{opts: opts, log: opts.Log}
}

// Process validates, transcribes and moderates an upload and returns the
// built report. Only validation and upstream failures are returned as
// errors; archive, store, webhook and MQTT problems are logged.
func (s *Service) Process(ctx context.Context, up Upload) (*Result, error) {
	source := sourceOf(up.Source)
	if strings.TrimSpace(up.Email) == "" {
		metrics.UploadsTotal.WithLabelValues(source, "invalid").Inc()
		return nil, ErrMissingEmail
	}
	file, err := audio.Validate(up.Filename, up.ContentType, up.Data)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(source, "invalid").Inc()
		return nil, err
	}
	log := s.log.With().Str("file", file.Name).Str("source", source).Logger()

	data := file.Data
	if s.opts.Preprocess {
		out, ok, err := transcribe.Preprocess(ctx, file.Data, file.Ext)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("preprocessing failed, using original audio")
		case ok:
			log.Debug().Int("before", len(file.Data)).Int("after", len(out)).Msg("audio preprocessed")
			data = out
		}
	}

	start := time.Now()
	tr, err := s.opts.Transcriber.Transcribe(ctx, transcribe.Audio{
		Filename:    file.Name,
		ContentType: file.ContentType,
		Data:        data,
	}, transcribe.TranscribeOpts{Language: s.opts.Language})
	metrics.StageDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())
	if err != nil {
		ev := log.Warn().Err(err).Str("provider", s.opts.Transcriber.Name())
		var apiErr *transcribe.APIError
		if errors.As(err, &apiErr) {
			ev = ev.Int("status", apiErr.Status).Bool("temporary", apiErr.Temporary())
		}
		ev.Msg("transcription failed")
		return nil, s.upstream(source, "transcribe", err)
	}
	transcript := strings.TrimSpace(tr.Text)
	log.Info().
		Str("provider", s.opts.Transcriber.Name()).
		Int("chars", len(transcript)).
		Float64("audio_duration", tr.Duration).
		Dur("took", time.Since(start)).
		Msg("transcription complete")

	start = time.Now()
	mod, err := s.opts.Moderator.Moderate(ctx, transcript)
	metrics.StageDuration.WithLabelValues("moderate").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.upstream(source, "moderate", err)
	}

	return s.finish(ctx, log, finishInput{
		transcript:  transcript,
		moderation:  mod,
		email:       up.Email,
		episodeName: up.EpisodeName,
		source:      source,
		file:        file,
	})
}

// Summarize builds and fans out a report for an already moderated transcript.
func (s *Service) Summarize(ctx context.Context, in Summarize) (*Result, error) {
	source := sourceOf(in.Source)
	if in.Moderation == nil {
		return nil, report.ErrMalformedInput
	}
	return s.finish(ctx, s.log.With().Str("source", source).Logger(), finishInput{
		transcript:  in.Transcript,
		moderation:  in.Moderation,
		email:       in.Email,
		episodeName: in.EpisodeName,
		source:      source,
	})
}

type finishInput struct {
	transcript  string
	moderation  *report.ModerationResponse
	email       string
	episodeName string
	source      string
	file        *audio.File // nil when there is no audio to archive
}

func (s *Service) finish(ctx context.Context, log zerolog.Logger, in finishInput) (*Result, error) {
	rep, err := s.opts.Builder.Build(report.Input{
		Transcript:  in.transcript,
		Moderation:  in.moderation,
		EpisodeName: in.episodeName,
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(in.source, "error").Inc()
		return nil, err
	}
	metrics.RiskScore.Observe(float64(rep.RiskScore))

	id := s.opts.NewID()
	log = log.With().Str("report_id", id).Logger()
	rec := &database.ReportRecord{
		ID:        id,
		Email:     in.email,
		CreatedAt: s.opts.Clock.Now().UTC(),
		Report:    *rep,
	}

	if in.file != nil && s.opts.Archive != nil {
		key := storage.Key(id, in.file.Ext, rec.CreatedAt)
		if err := s.opts.Archive.Save(ctx, key, in.file.Data, in.file.ContentType); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("audio archive failed")
		} else {
			rec.AudioKey = key
		}
	}

	if s.opts.Store != nil {
		if raw, err := json.Marshal(in.moderation); err == nil {
			rec.Moderation = raw
		}
		if err := s.opts.Store.InsertReport(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("failed to store report")
		}
	}

	sent := false
	if s.opts.Dispatcher != nil {
		err := s.opts.Dispatcher.Enqueue(webhook.Payload{Report: *rep, Email: in.email})
		switch {
		case err == nil:
			sent = true
		case errors.Is(err, webhook.ErrDisabled):
		default:
			log.Warn().Err(err).Msg("report not queued for webhook")
		}
	}

	if s.opts.Publisher != nil {
		s.publish(mqttclient.ReportSummary{
			ID:                id,
			EpisodeName:       rep.EpisodeName,
			RiskScore:         rep.RiskScore,
			HasFlagged:        rep.FlaggedContent != "",
			HasMisinformation: rep.MisinformationContent != "",
			Timestamp:         rep.Timestamp,
			Source:            in.source,
		}, log)
	}

	metrics.UploadsTotal.WithLabelValues(in.source, "ok").Inc()
	log.Info().
		Str("episode", rep.EpisodeName).
		Int("risk_score", rep.RiskScore).
		Bool("sent_to_make", sent).
		Msg("report built")

	return &Result{
		ReportID:   id,
		Transcript: in.transcript,
		Moderation: in.moderation,
		Report:     rep,
		SentToMake: sent,
	}, nil
}

// publish runs in the background so a slow broker never delays the response.
func (s *Service) publish(summary mqttclient.ReportSummary, log zerolog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.opts.Publisher.Publish(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("mqtt publish failed")
			return
		}
		metrics.MQTTPublishedTotal.Inc()
	}()
}

// Wait blocks until background publishes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) upstream(source, stage string, err error) error {
	metrics.UpstreamFailuresTotal.WithLabelValues(stage).Inc()
	metrics.UploadsTotal.WithLabelValues(source, "upstream_error").Inc()
	return fmt.Errorf("%w: %s: %v", ErrUpstream, stage, err)
}

func sourceOf(s string) string {
	if s == "" {
		return "http"
	}
	return s
}
