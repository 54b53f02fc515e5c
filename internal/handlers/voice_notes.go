package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/idguard/internal/models"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// maxVoiceNotePage bounds the page number so the row offset cannot overflow
const maxVoiceNotePage = 100000

// VoiceNoteListerInterface pages through an anonymous session's notes
type VoiceNoteListerInterface interface {
	ListForSession(ctx context.Context, sessionID string, page, limit int) (*models.VoiceNotePage, error)
}

// VoiceNoteHandler serves the anonymous voice note listing
type VoiceNoteHandler struct {
	notes VoiceNoteListerInterface
}

// NewVoiceNoteHandler creates a new VoiceNoteHandler
func NewVoiceNoteHandler(notes VoiceNoteListerInterface) *VoiceNoteHandler {
	return &VoiceNoteHandler{notes: notes}
}

// ListForSession returns one page of a session's voice notes, newest first
// @Summary List anonymous voice notes
// @Param sessionId path string true "Session id"
// @Param page query int false "Page number, from 1"
// @Param limit query int false "Page size, at most 100"
// @Produce json
// @Success 200 {object} models.VoiceNotePage
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /anonymous/voice-notes/{sessionId} [get]
func (h *VoiceNoteHandler) ListForSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	if err := ValidateSessionID(sessionID); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	page, err := queryInt(r, "page")
	if err != nil || page > maxVoiceNotePage {
		pkghttp.WriteBadRequest(w, "page must be a number between 1 and "+strconv.Itoa(maxVoiceNotePage))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		pkghttp.WriteBadRequest(w, "limit must be a number")
		return
	}

	result, err := h.notes.ListForSession(r.Context(), sessionID, page, limit)
	if err != nil {
		if errors.Is(err, models.ErrMissingSessionID) {
			pkghttp.WriteBadRequest(w, "session id is required")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to list voice notes")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// queryInt reads an optional integer query parameter; absent means 0
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
