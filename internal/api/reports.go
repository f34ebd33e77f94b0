package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/podcheck/internal/database"
	"github.com/snarg/podcheck/internal/report"
	"github.com/snarg/podcheck/internal/storage"
)

// ReportResponse is a stored report as served by the review API.
type ReportResponse struct {
	ID         string          `json:"id"`
	Email      string          `json:"email,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	HasAudio   bool            `json:"hasAudio"`
	Report     report.Report   `json:"report"`
	Moderation json.RawMessage `json:"moderation,omitempty"`
}

func toReportResponse(rec *database.ReportRecord) ReportResponse {
	return ReportResponse{
		ID:         rec.ID,
		Email:      rec.Email,
		CreatedAt:  rec.CreatedAt,
		HasAudio:   rec.AudioKey != "",
		Report:     rec.Report,
		Moderation: rec.Moderation,
	}
}

// ReportListResponse is one page of stored reports.
type ReportListResponse struct {
	Reports []ReportResponse `json:"reports"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ReportsHandler serves stored reports and their archived audio.
type ReportsHandler struct {
	store   database.ReportStore
	archive storage.AudioStore // nil when archiving is off
	log     zerolog.Logger
}

func NewReportsHandler(store database.ReportStore, archive storage.AudioStore, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{
		store:   store,
		archive: archive,
		log:     log.With().Str("handler", "reports").Logger(),
	}
}

// Review handles GET /api/review: the most recent report in webhook form.
func (h *ReportsHandler) Review(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.latest(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, rec.Report)
}

// Latest handles GET /api/v1/reports/latest.
func (h *ReportsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.latest(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, toReportResponse(rec))
}

func (h *ReportsHandler) latest(w http.ResponseWriter, r *http.Request) (*database.ReportRecord, bool) {
	rec, err := h.store.LatestReport(r.Context())
	if errors.Is(err, database.ErrNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "no reports yet")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load latest report")
		WriteInternalError(w)
		return nil, false
	}
	return rec, true
}

// Get handles GET /api/v1/reports/{id}.
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.get(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, toReportResponse(rec))
}

func (h *ReportsHandler) get(w http.ResponseWriter, r *http.Request) (*database.ReportRecord, bool) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.GetReport(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "report not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("failed to load report")
		WriteInternalError(w)
		return nil, false
	}
	return rec, true
}

// List handles GET /api/v1/reports?limit=&offset=&email=.
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}
	email, _ := QueryString(r, "email")

	recs, total, err := h.store.ListReports(r.Context(), database.ReportFilter{
		Email:  email,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list reports")
		WriteInternalError(w)
		return
	}

	out := make([]ReportResponse, 0, len(recs))
	for i := range recs {
		out = append(out, toReportResponse(&recs[i]))
	}
	WriteJSON(w, http.StatusOK, ReportListResponse{Reports: out, Total: total, Limit: p.Limit, Offset: p.Offset})
}

// Audio handles GET /api/v1/reports/{id}/audio. S3 archives redirect to a
// presigned URL; local archives are streamed.
func (h *ReportsHandler) Audio(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.get(w, r)
	if !ok {
		return
	}
	if rec.AudioKey == "" || h.archive == nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "no archived audio for this report")
		return
	}

	if u, err := h.archive.URL(r.Context(), rec.AudioKey); err != nil {
		h.log.Warn().Err(err).Str("key", rec.AudioKey).Msg("presign failed, streaming instead")
	} else if u != "" {
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	rc, err := h.archive.Open(r.Context(), rec.AudioKey)
	if errors.Is(err, storage.ErrNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "archived audio unavailable")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("key", rec.AudioKey).Msg("open archived audio")
		WriteInternalError(w)
		return
	}
	defer rc.Close()

	ct := "audio/mpeg"
	if path.Ext(rec.AudioKey) == ".mp4" {
		ct = "audio/mp4"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", `inline; filename="`+path.Base(rec.AudioKey)+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Debug().Err(err).Str("key", rec.AudioKey).Msg("audio stream interrupted")
	}
}
