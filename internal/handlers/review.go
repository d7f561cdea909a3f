package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cardforge-backend/internal/middleware"
	"cardforge-backend/internal/models"
	"cardforge-backend/internal/services"
)

type ReviewHandler struct {
	review *services.ReviewService
}

func NewReviewHandler(review *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{review: review}
}

// ListCandidates handles GET /ai-sessions/{sessionID}/candidates.
func (h *ReviewHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	cards, err := h.review.ListPending(r.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if cards == nil {
		cards = []*models.Flashcard{}
	}

	writeJSON(w, http.StatusOK, cards)
}

// ApplyActions handles POST /ai-sessions/{sessionID}/candidates/actions: one
// bulk accept/edit/reject batch.
func (h *ReviewHandler) ApplyActions(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	var req models.CandidateActionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	result, err := h.review.ApplyActions(r.Context(), userID, sessionID, req.Actions)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetSession handles GET /ai-sessions/{sessionID}.
func (h *ReviewHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	session, err := h.review.GetSession(r.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// SessionEvents handles GET /ai-sessions/{sessionID}/events: the append-only
// audit trail for one generation.
func (h *ReviewHandler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	events, err := h.review.SessionEvents(r.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []*models.EventLogEntry{}
	}

	writeJSON(w, http.StatusOK, events)
}

// ListOtherPending handles GET /candidates/other-pending?excludeSessionId=.
// It answers "which candidates from my other generations still need review".
func (h *ReviewHandler) ListOtherPending(w http.ResponseWriter, r *http.Request) {
	exclude, err := uuid.Parse(r.URL.Query().Get("excludeSessionId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "excludeSessionId must be a valid session ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	cards, err := h.review.ListOtherPending(r.Context(), userID, exclude)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if cards == nil {
		cards = []*models.Flashcard{}
	}

	writeJSON(w, http.StatusOK, cards)
}

// ListOrphaned handles GET /candidates/orphaned. Surfaces batches the user
// started and never reviewed.
func (h *ReviewHandler) ListOrphaned(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	cards, err := h.review.ListOrphaned(r.Context(), userID, services.OrphanStaleness)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if cards == nil {
		cards = []*models.Flashcard{}
	}

	writeJSON(w, http.StatusOK, cards)
}
