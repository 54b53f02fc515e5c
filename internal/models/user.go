package models

import (
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreditsUsed  int       `json:"credits_used"`
	CreatedAt    time.Time `json:"created_at"`
}
