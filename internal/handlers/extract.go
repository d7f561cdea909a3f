package handlers

import (
	"net/http"
	"unicode/utf8"

	"cardforge-backend/internal/services"
)

const maxUploadBytes = 10 << 20 // 10 MB

type ExtractHandler struct {
	extract *services.ExtractService
}

func NewExtractHandler(extract *services.ExtractService) *ExtractHandler {
	return &ExtractHandler{extract: extract}
}

// Extract handles POST /extract: multipart upload of a txt/pdf/docx document,
// returning plain text the client can paste into a generation request.
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart upload", r))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "A 'file' form field is required", r))
		return
	}
	defer file.Close()

	text, err := h.extract.ExtractText(header.Filename, file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":       text,
		"char_count": utf8.RuneCountInString(text),
	})
}
