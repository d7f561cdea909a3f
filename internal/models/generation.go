package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationSession records one call to the LLM and the acceptance counters
// maintained by the review flow. Counters only ever increase.
type GenerationSession struct {
	ID                    uuid.UUID `json:"id"`
	UserID                uuid.UUID `json:"user_id"`
	InputText             string    `json:"-"`
	InputTextHash         string    `json:"input_text_hash"`
	Model                 string    `json:"model"`
	CustomPrompt          *string   `json:"custom_prompt,omitempty"`
	GenerationDurationMs  int       `json:"generation_duration_ms"`
	AcceptedUneditedCount int       `json:"accepted_unedited_count"`
	AcceptedEditedCount   int       `json:"accepted_edited_count"`
	CreatedAt             time.Time `json:"created_at"`
}

type GenerateSessionRequest struct {
	InputText    string  `json:"input_text"`
	Model        string  `json:"model"`
	CustomPrompt *string `json:"custom_prompt"`
}

// Candidate is the wire shape of a proposed card inside a generation response.
type Candidate struct {
	ID     uuid.UUID `json:"id"`
	Front  string    `json:"front"`
	Back   string    `json:"back"`
	Prompt *string   `json:"prompt,omitempty"`
}

type GenerateSessionResponse struct {
	ID            uuid.UUID   `json:"id"`
	Candidates    []Candidate `json:"candidates"`
	InputTextHash string      `json:"input_text_hash"`
}

// Review actions

const (
	ActionAccept = "accept"
	ActionEdit   = "edit"
	ActionReject = "reject"
)

type CandidateAction struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Action      string    `json:"action"` // "accept" | "edit" | "reject"
	EditedFront *string   `json:"edited_front,omitempty"`
	EditedBack  *string   `json:"edited_back,omitempty"`
}

type CandidateActionsRequest struct {
	Actions []CandidateAction `json:"actions"`
}

type CandidateActionsResult struct {
	Accepted []uuid.UUID `json:"accepted"`
	Edited   []uuid.UUID `json:"edited"`
	Rejected []uuid.UUID `json:"rejected"`
}

// EventLogEntry is an append-only audit record. EventType is a free-form tag,
// e.g. "candidates_accepted_unedited:3".
type EventLogEntry struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	EventType string     `json:"event_type"`
	CreatedAt time.Time  `json:"created_at"`
}
