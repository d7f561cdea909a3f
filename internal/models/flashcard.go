package models

import (
	"time"

	"github.com/google/uuid"
)

// Flashcard is a single card in the user's collection. While SessionID is
// non-null and DeletedAt is null, the card is an AI candidate pending review;
// accepting or editing it clears SessionID and it becomes a permanent card.
type Flashcard struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Front     string     `json:"front"`
	Back      string     `json:"back"`
	Source    string     `json:"source"` // "manual" | "ai"
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

const (
	SourceManual = "manual"
	SourceAI     = "ai"

	MaxFrontLen = 200
	MaxBackLen  = 500
)

type CreateFlashcardRequest struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type UpdateFlashcardRequest struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}
