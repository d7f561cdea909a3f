package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cardforge-backend/internal/models"
	"cardforge-backend/internal/services"
)

// ─── Error Mapping Tests ───

func TestHandleServiceError_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"input_text": "too short"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", &services.NotFoundError{Message: "Session not found"}, http.StatusNotFound, "NOT_FOUND"},
		{"parse", &services.ParseError{Message: "model returned malformed output"}, http.StatusInternalServerError, "PARSE_ERROR"},
		{"rate limited", &services.UpstreamRateLimitError{Message: "try again later"}, http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMITED"},
		{"upstream", &services.UpstreamError{Message: "model call failed"}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rr := httptest.NewRecorder()

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, rr.Code)
			}

			var resp models.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if resp.Error.Code != tc.wantCode {
				t.Errorf("Expected code %q, got %q", tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestHandleServiceError_ValidationFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rr := httptest.NewRecorder()

	handleServiceError(rr, req, &services.ValidationError{
		Fields: map[string]string{"model": "model is not supported"},
	})

	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Error.Fields["model"] != "model is not supported" {
		t.Errorf("Expected field detail to survive, got %v", resp.Error.Fields)
	}
}

func TestErrorResp_EchoesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")

	resp := errorResp("NOT_FOUND", "Flashcard not found", req)
	if resp.Error.RequestID != "req-123" {
		t.Errorf("Expected request_id 'req-123', got %q", resp.Error.RequestID)
	}
}

// ─── JSON Response Tests ───

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusCreated, map[string]string{"message": "Flashcard updated"})

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got %q", ct)
	}

	var result map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["message"] != "Flashcard updated" {
		t.Errorf("Expected message 'Flashcard updated', got %q", result["message"])
	}
}

// ─── Card Validation Tests ───

func TestValidateCardRequest(t *testing.T) {
	tests := []struct {
		name      string
		front     string
		back      string
		wantField string
	}{
		{"valid", "What is a goroutine?", "A lightweight thread managed by the Go runtime.", ""},
		{"empty front", "", "back text", "front"},
		{"empty back", "front text", "", "back"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateCardRequest(tc.front, tc.back)
			if tc.wantField == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}

			ve, ok := err.(*services.ValidationError)
			if !ok {
				t.Fatalf("Expected *services.ValidationError, got %T", err)
			}
			if _, present := ve.Fields[tc.wantField]; !present {
				t.Errorf("Expected error keyed on %q, got %v", tc.wantField, ve.Fields)
			}
		})
	}
}
