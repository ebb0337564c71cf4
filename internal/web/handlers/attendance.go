package handlers

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceHandler serves attendance reports.
type AttendanceHandler struct {
	service *attendance.Service
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(service *attendance.Service) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// sessionFilter parses the shared query parameters for session listings.
// from/to are RFC 3339 timestamps compared against the session open time.
func sessionFilter(r *http.Request) (database.SessionFilter, error) {
	var filter database.SessionFilter
	q := r.URL.Query()

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid from timestamp: %w", err)
		}
		filter.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid to timestamp: %w", err)
		}
		filter.To = &to
	}
	if v := q.Get("person_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, fmt.Errorf("invalid person_id: %w", err)
		}
		filter.IdentityID = &id
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("invalid limit")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("invalid offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}

// SessionResponse is the API shape of an attendance session.
type SessionResponse struct {
	ID          uuid.UUID  `json:"id"`
	PersonID    uuid.UUID  `json:"person_id"`
	PersonName  string     `json:"person_name"`
	ExternalRef string     `json:"external_ref,omitempty"`
	Department  string     `json:"department,omitempty"`
	Day         string     `json:"day"`
	OpenTime    time.Time  `json:"open_time"`
	CloseTime   *time.Time `json:"close_time,omitempty"`
	Confidence  float64    `json:"confidence"`
	Location    string     `json:"location,omitempty"`
	Open        bool       `json:"open"`
}

func toSessionResponse(s *database.SessionWithIdentity) SessionResponse {
	return SessionResponse{
		ID:          s.ID,
		PersonID:    s.IdentityID,
		PersonName:  s.IdentityName,
		ExternalRef: s.ExternalRef,
		Department:  s.Department,
		Day:         s.Day,
		OpenTime:    s.OpenTime,
		CloseTime:   s.CloseTime,
		Confidence:  s.Confidence,
		Location:    s.Location,
		Open:        s.IsOpen(),
	}
}

// List returns attendance sessions, newest first.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := sessionFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.service.Sessions(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	result := make([]SessionResponse, 0, len(sessions))
	for i := range sessions {
		result = append(result, toSessionResponse(&sessions[i]))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": result,
		"count":    len(result),
	})
}

// Today aggregates attendance for the current calendar day.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Today(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	rate := 0.0
	if summary.TotalActive > 0 {
		rate = float64(summary.CheckedIn) / float64(summary.TotalActive)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"day":             summary.Day,
		"total_active":    summary.TotalActive,
		"checked_in":      summary.CheckedIn,
		"session_count":   summary.SessionCount,
		"attendance_rate": rate,
	})
}

// Export streams attendance sessions as CSV.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := sessionFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.service.Sessions(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="attendance.csv"`)

	writer := csv.NewWriter(w)
	writer.Write([]string{"day", "name", "external_ref", "department", "open_time", "close_time", "hours", "confidence", "location"})

	for i := range sessions {
		s := &sessions[i]
		closeTime, hours := "", ""
		if s.CloseTime != nil {
			closeTime = s.CloseTime.Format(time.RFC3339)
			hours = strconv.FormatFloat(s.CloseTime.Sub(s.OpenTime).Hours(), 'f', 2, 64)
		}
		writer.Write([]string{
			s.Day,
			s.IdentityName,
			s.ExternalRef,
			s.Department,
			s.OpenTime.Format(time.RFC3339),
			closeTime,
			hours,
			strconv.FormatFloat(s.Confidence, 'f', 4, 64),
			s.Location,
		})
	}
	writer.Flush()
	// Headers are already sent, a status change is no longer possible.
	if err := writer.Error(); err != nil {
		log.Printf("writing attendance CSV: %v", err)
	}
}

// Durations returns per-person presence totals for an inclusive day range
// (?from_day=YYYY-MM-DD&to_day=YYYY-MM-DD, defaulting to today).
func (h *AttendanceHandler) Durations(w http.ResponseWriter, r *http.Request) {
	today := h.service.Clock().Today()
	fromDay := r.URL.Query().Get("from_day")
	toDay := r.URL.Query().Get("to_day")
	if fromDay == "" {
		fromDay = today
	}
	if toDay == "" {
		toDay = today
	}

	durations, err := h.service.Durations(r.Context(), fromDay, toDay)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	type durationResponse struct {
		PersonID   uuid.UUID `json:"person_id"`
		PersonName string    `json:"person_name"`
		Sessions   int       `json:"sessions"`
		TotalHours float64   `json:"total_hours"`
	}
	result := make([]durationResponse, 0, len(durations))
	for _, d := range durations {
		result = append(result, durationResponse{
			PersonID:   d.IdentityID,
			PersonName: d.IdentityName,
			Sessions:   d.Sessions,
			TotalHours: d.TotalHours,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"from_day":  fromDay,
		"to_day":    toDay,
		"durations": result,
	})
}
