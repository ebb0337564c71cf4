package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps domain errors to HTTP responses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attendance.ErrNoFaceDetected):
		respondError(w, http.StatusBadRequest, "no face detected")
	case errors.Is(err, attendance.ErrAmbiguousCapture):
		respondError(w, http.StatusBadRequest, "multiple faces detected, expected exactly one")
	case errors.Is(err, attendance.ErrInvalidEmbedding):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, attendance.ErrNotRecognized):
		respondError(w, http.StatusNotFound, "face not recognized")
	case errors.Is(err, attendance.ErrStorageConflict):
		respondError(w, http.StatusConflict, "concurrent scan in progress, retry")
	case errors.Is(err, database.ErrIdentityNotFound):
		respondError(w, http.StatusNotFound, "person not found")
	case errors.Is(err, database.ErrDuplicateExternalRef):
		respondError(w, http.StatusConflict, "external reference already in use")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
