package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// PersonsHandler manages the enrollment roster.
type PersonsHandler struct {
	service *attendance.Service
}

// NewPersonsHandler creates a new persons handler.
func NewPersonsHandler(service *attendance.Service) *PersonsHandler {
	return &PersonsHandler{service: service}
}

// PersonResponse is the API shape of an enrolled identity. The embedding is
// never exposed.
type PersonResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ExternalRef string    `json:"external_ref,omitempty"`
	Department  string    `json:"department,omitempty"`
	Active      bool      `json:"active"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

func toPersonResponse(identity *database.StoredIdentity) PersonResponse {
	return PersonResponse{
		ID:          identity.ID,
		Name:        identity.Name,
		ExternalRef: identity.ExternalRef,
		Department:  identity.Department,
		Active:      identity.Active,
		EnrolledAt:  identity.EnrolledAt,
		UpdatedAt:   identity.UpdatedAt,
	}
}

// CreatePersonRequest is the enrollment request body.
type CreatePersonRequest struct {
	Name        string    `json:"name"`
	ExternalRef string    `json:"external_ref"`
	Department  string    `json:"department"`
	Embedding   []float32 `json:"embedding"`
}

// Create enrolls a new person with a precomputed face embedding.
func (h *PersonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	identity, err := h.service.Enroll(r.Context(), req.Name, req.ExternalRef, req.Department, req.Embedding)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toPersonResponse(identity))
}

// List returns enrolled persons. Supports ?active=true and a
// diacritic-insensitive ?q= name filter.
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	nameQuery := r.URL.Query().Get("q")

	identities, err := h.service.Persons(r.Context(), activeOnly, nameQuery)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	persons := make([]PersonResponse, 0, len(identities))
	for i := range identities {
		persons = append(persons, toPersonResponse(&identities[i]))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"persons": persons,
		"count":   len(persons),
	})
}

// Get returns a single person by id.
func (h *PersonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return
	}

	identity, err := h.service.Person(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toPersonResponse(identity))
}

// UpdatePersonRequest carries the mutable display fields. The embedding is
// immutable; re-enroll to change it.
type UpdatePersonRequest struct {
	Name        *string `json:"name"`
	ExternalRef *string `json:"external_ref"`
	Department  *string `json:"department"`
}

// Update changes a person's display fields.
func (h *PersonsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return
	}

	var req UpdatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	identity, err := h.service.Person(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if req.Name != nil {
		identity.Name = *req.Name
	}
	if req.ExternalRef != nil {
		identity.ExternalRef = *req.ExternalRef
	}
	if req.Department != nil {
		identity.Department = *req.Department
	}

	if err := h.service.Update(r.Context(), identity); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toPersonResponse(identity))
}

// Delete deactivates a person. Attendance history is kept.
func (h *PersonsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return
	}

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
