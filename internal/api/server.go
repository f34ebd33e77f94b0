// Package api is the HTTP surface: the upload page, the upload and summarize
// routes, the review API, moderation-as-a-service, health and metrics.
package api

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/podcheck/internal/config"
	"github.com/snarg/podcheck/internal/database"
	"github.com/snarg/podcheck/internal/metrics"
	"github.com/snarg/podcheck/internal/moderation"
	"github.com/snarg/podcheck/internal/storage"
)

// ServerOptions wires the HTTP server. Moderator and Archive may be nil.
type ServerOptions struct {
	Config    *config.Config
	Processor Processor
	Moderator moderation.Moderator
	Store     database.ReportStore
	Archive   storage.AudioStore
	Health    HealthDeps
	WebFS     fs.FS
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(opts),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the route tree. Exposed for tests.
func NewRouter(opts ServerOptions) http.Handler {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Recoverer)
	r.Use(CORSWithOrigins(cfg.CORSOriginList()))
	r.Use(metrics.InstrumentHandler)

	// Health and metrics: no auth
	r.Get("/api/v1/health", NewHealthHandler(opts.Health, opts.Version, opts.StartTime).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	uploads := NewUploadHandler(opts.Processor, cfg.MaxUploadMB, opts.Log)
	reports := NewReportsHandler(opts.Store, opts.Archive, opts.Log)

	// Public upload routes, throttled per client
	r.Group(func(r chi.Router) {
		r.Use(RateLimiter(cfg.UploadRateLimit, cfg.UploadRateBurst))
		r.Post("/api/transcribe-audio", uploads.Upload)
		r.Post("/api/v1/uploads", uploads.Upload)
		r.Post("/api/make", uploads.Make)
	})
	r.Get("/api/review", reports.Review)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		if opts.Moderator != nil {
			r.Post("/process-transcript", NewModerationHandler(opts.Moderator, opts.Log).ProcessTranscript)
		}
		r.Route("/api/v1/reports", func(r chi.Router) {
			r.Get("/{id}/audio", reports.Audio)
			// these carry uploader emails
			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(cfg.AuthToken))
				r.Get("/", reports.List)
				r.Get("/latest", reports.Latest)
				r.Get("/{id}", reports.Get)
			})
		})
	})

	// Upload page
	if opts.WebFS != nil {
		r.Handle("/*", http.FileServer(http.FS(opts.WebFS)))
	}

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
