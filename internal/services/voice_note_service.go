package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BradenHooton/idguard/internal/models"
)

// Paging defaults for session note listings
const (
	DefaultVoiceNotePageSize = 10
	MaxVoiceNotePageSize     = 100
)

// VoiceNoteRepository lists notes held by an anonymous session
type VoiceNoteRepository interface {
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]models.VoiceNote, int, error)
}

// VoiceNoteService pages through an anonymous session's voice notes
type VoiceNoteService struct {
	repo   VoiceNoteRepository
	logger *slog.Logger
}

// NewVoiceNoteService creates a new VoiceNoteService
func NewVoiceNoteService(repo VoiceNoteRepository, logger *slog.Logger) *VoiceNoteService {
	return &VoiceNoteService{repo: repo, logger: logger}
}

// ListForSession returns the requested page. A page below 1 means the
// first page; the limit falls back to 10 and is capped at 100. A session
// that was never seen or was already migrated has an empty listing.
func (s *VoiceNoteService) ListForSession(ctx context.Context, sessionID string, page, limit int) (*models.VoiceNotePage, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, models.ErrMissingSessionID
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultVoiceNotePageSize
	}
	limit = min(limit, MaxVoiceNotePageSize)

	notes, total, err := s.repo.ListBySession(ctx, sessionID, limit, (page-1)*limit)
	if err != nil {
		s.logger.Error("failed to list session voice notes",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if notes == nil {
		notes = []models.VoiceNote{}
	}

	return &models.VoiceNotePage{
		Data:       notes,
		Pagination: models.NewPagination(page, limit, total),
	}, nil
}
