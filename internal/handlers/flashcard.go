package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"cardforge-backend/internal/middleware"
	"cardforge-backend/internal/models"
	"cardforge-backend/internal/repository"
	"cardforge-backend/internal/services"
)

// FlashcardHandler serves the permanent collection: manual cards plus
// candidates that graduated through the review flow.
type FlashcardHandler struct {
	cardRepo *repository.FlashcardRepo
}

func NewFlashcardHandler(cardRepo *repository.FlashcardRepo) *FlashcardHandler {
	return &FlashcardHandler{cardRepo: cardRepo}
}

func (h *FlashcardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateFlashcardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := validateCardRequest(req.Front, req.Back); err != nil {
		handleServiceError(w, r, err)
		return
	}

	card := &models.Flashcard{
		UserID: middleware.GetUserID(r.Context()),
		Front:  req.Front,
		Back:   req.Back,
		Source: models.SourceManual,
	}

	if err := h.cardRepo.Create(r.Context(), card); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create flashcard", r))
		return
	}

	writeJSON(w, http.StatusCreated, card)
}

func (h *FlashcardHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	cards, err := h.cardRepo.ListCollection(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch flashcards", r))
		return
	}
	if cards == nil {
		cards = []*models.Flashcard{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"flashcards": cards})
}

func (h *FlashcardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid flashcard ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	card, err := h.cardRepo.GetByID(r.Context(), id, userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Flashcard not found", r))
		return
	}

	writeJSON(w, http.StatusOK, card)
}

func (h *FlashcardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid flashcard ID", r))
		return
	}

	var req models.UpdateFlashcardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := validateCardRequest(req.Front, req.Back); err != nil {
		handleServiceError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())

	if err := h.cardRepo.Update(r.Context(), id, userID, req.Front, req.Back); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Flashcard not found", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update flashcard", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Flashcard updated"})
}

func (h *FlashcardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid flashcard ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	if err := h.cardRepo.SoftDelete(r.Context(), id, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Flashcard not found", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete flashcard", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Flashcard deleted"})
}

func validateCardRequest(front, back string) error {
	if msg := services.ValidateCardText(front, back); msg != "" {
		field := "front"
		if len(msg) >= 4 && msg[:4] == "back" {
			field = "back"
		}
		return &services.ValidationError{Fields: map[string]string{field: msg}}
	}
	return nil
}
