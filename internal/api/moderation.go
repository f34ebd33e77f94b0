package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/snarg/podcheck/internal/moderation"
)

// ModerationHandler exposes the moderator over HTTP so other deployments can
// point MODERATION_URL at this one.
type ModerationHandler struct {
	mod moderation.Moderator
	log zerolog.Logger
}

func NewModerationHandler(mod moderation.Moderator, log zerolog.Logger) *ModerationHandler {
	return &ModerationHandler{mod: mod, log: log.With().Str("handler", "moderation").Logger()}
}

type processTranscriptRequest struct {
	Transcript string `json:"transcript"`
}

// ProcessTranscript handles POST /process-transcript. An empty transcript
// yields an empty moderation response.
func (h *ModerationHandler) ProcessTranscript(w http.ResponseWriter, r *http.Request) {
	var req processTranscriptRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	resp, err := h.mod.Moderate(r.Context(), req.Transcript)
	if err != nil {
		h.log.Error().Err(err).Int("chars", len(req.Transcript)).Msg("moderation failed")
		WriteErrorDetail(w, http.StatusInternalServerError, "Failed to generate moderation report", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}
