package models

import "time"

// VoiceNote is the billable resource owned either by a user or by an
// anonymous session, never both. Only the ownership columns matter here.
type VoiceNote struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   *string   `db:"owner_id" json:"owner_id,omitempty"`
	SessionID *string   `db:"session_id" json:"session_id,omitempty"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Pagination describes one page of a listing
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes the page count for total items
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// VoiceNotePage is one page of an anonymous session's notes, newest first
type VoiceNotePage struct {
	Data       []VoiceNote `json:"data"`
	Pagination Pagination  `json:"pagination"`
}
