// internal/server/handlers/response.go

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"magnet/internal/domain/problem"
)

// errorResponse is the body of every non-2xx response
type errorResponse struct {
	Error string `json:"error"`
	Item  string `json:"item,omitempty"`
	Index *int   `json:"index,omitempty"`
	Field string `json:"field,omitempty"`
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses. Server errors are logged with their cause.
func respondWithError(w http.ResponseWriter, logger *slog.Logger, code int, message string, err error) {
	if err != nil && code >= 500 {
		logger.Error("HTTP error", "code", code, "message", message, "error", err)
	}

	respondWithJSON(w, code, errorResponse{Error: message})
}

// respondWithValidationError reports the offending item and field
func respondWithValidationError(w http.ResponseWriter, verr *problem.ValidationError) {
	index := verr.Index
	respondWithJSON(w, http.StatusBadRequest, errorResponse{
		Error: verr.Error(),
		Item:  verr.ItemID,
		Index: &index,
		Field: verr.Field,
	})
}

// respondWithServiceError maps a service error onto a status code
func respondWithServiceError(w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	var verr *problem.ValidationError
	if errors.As(err, &verr) {
		respondWithValidationError(w, verr)
		return
	}
	respondWithError(w, logger, http.StatusInternalServerError, message, err)
}
