package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snarg/podcheck/internal/audio"
	"github.com/snarg/podcheck/internal/pipeline"
	"github.com/snarg/podcheck/internal/report"
)

// Processor runs uploads through transcription, moderation and report
// building. *pipeline.Service satisfies it.
type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (*pipeline.Result, error)
	Summarize(ctx context.Context, in pipeline.Summarize) (*pipeline.Result, error)
}

// MakeIntegration summarizes what was handed to the automation webhook.
type MakeIntegration struct {
	EpisodeName string `json:"episodeName"`
	RiskScore   int    `json:"riskScore"`
	SentToMake  bool   `json:"sentToMake"`
}

// UploadResponse is returned for a processed upload. The moderation response
// is passed through unchanged; existing Make.com scenarios read it from the
// "flaskResponse" key.
type UploadResponse struct {
	Text            string                     `json:"text"`
	Moderation      *report.ModerationResponse `json:"flaskResponse"`
	MakeIntegration MakeIntegration            `json:"makeIntegration"`
	ReportID        string                     `json:"reportId,omitempty"`
}

func newUploadResponse(res *pipeline.Result) UploadResponse {
	return UploadResponse{
		Text:       res.Transcript,
		Moderation: res.Moderation,
		MakeIntegration: MakeIntegration{
			EpisodeName: res.Report.EpisodeName,
			RiskScore:   res.Report.RiskScore,
			SentToMake:  res.SentToMake,
		},
		ReportID: res.ReportID,
	}
}

// UploadHandler accepts episode uploads from the web page and API clients.
type UploadHandler struct {
	proc     Processor
	maxBytes int64
	log      zerolog.Logger
}

// NewUploadHandler creates a new upload handler. maxUploadMB caps the request
// body; zero means 200 MB.
func NewUploadHandler(proc Processor, maxUploadMB int64, log zerolog.Logger) *UploadHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 200
	}
	return &UploadHandler{
		proc:     proc,
		maxBytes: maxUploadMB << 20,
		log:      log.With().Str("handler", "upload").Logger(),
	}
}

// Upload handles POST /api/transcribe-audio and POST /api/v1/uploads.
// Multipart fields: audio (file, required), email (required), episodeName.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrTooLarge, "audio file is too large")
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "No audio file provided")
		return
	}
	defer file.Close()

	email := strings.TrimSpace(r.FormValue("email"))
	if email == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "Email is required")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	res, err := h.proc.Process(r.Context(), pipeline.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Email:       email,
		EpisodeName: r.FormValue("episodeName"),
		Source:      "http",
	})
	if err != nil {
		h.writeProcessError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, newUploadResponse(res))
}

func (h *UploadHandler) writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, audio.ErrUnsupportedType):
		WriteErrorWithCode(w, http.StatusUnsupportedMediaType, ErrUnsupportedMedia, "Please upload an MP3 or MP4 file")
	case errors.Is(err, audio.ErrEmpty), errors.Is(err, pipeline.ErrMissingEmail):
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, err.Error())
	default:
		h.log.Error().Err(err).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Msg("upload processing failed")
		WriteInternalError(w)
	}
}

// MakeRequest is the body of POST /api/make.
type MakeRequest struct {
	FullTranscriptionResponse struct {
		Text       string          `json:"text"`
		Moderation json.RawMessage `json:"flaskResponse"`
	} `json:"fullTranscriptionResponse"`
	ProvidedEpisodeName string `json:"providedEpisodeName"`
	Email               string `json:"email"`
}

// Make handles POST /api/make: build and send a report for a transcript that
// was already moderated.
func (h *UploadHandler) Make(w http.ResponseWriter, r *http.Request) {
	var req MakeRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	mod, err := report.DecodeModeration(req.FullTranscriptionResponse.Moderation)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "fullTranscriptionResponse.flaskResponse is required")
		return
	}

	res, err := h.proc.Summarize(r.Context(), pipeline.Summarize{
		Transcript:  req.FullTranscriptionResponse.Text,
		Moderation:  mod,
		Email:       strings.TrimSpace(req.Email),
		EpisodeName: req.ProvidedEpisodeName,
		Source:      "http",
	})
	if err != nil {
		h.writeProcessError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, newUploadResponse(res))
}
