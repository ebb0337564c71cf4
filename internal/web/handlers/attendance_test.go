package handlers

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// recordDay opens and closes one session for the given identity.
func recordDay(t *testing.T, h *AttendanceHandler, name string, openAt, closeAt time.Time) {
	t.Helper()
	ctx := context.Background()
	identity, err := h.service.Enroll(ctx, name, "", "", []float32{0, 0, 0})
	if err != nil {
		t.Fatalf("failed to enroll: %v", err)
	}
	if _, _, err := h.service.RecordScan(ctx, identity.ID, openAt, 0.95, "gate-1"); err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	if _, _, err := h.service.RecordScan(ctx, identity.ID, closeAt, 0.95, "gate-1"); err != nil {
		t.Fatalf("failed to close session: %v", err)
	}
}

func TestAttendanceHandler_List(t *testing.T) {
	service, _, _ := testService(t)
	handler := NewAttendanceHandler(service)

	open := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	recordDay(t, handler, "Alice", open, open.Add(8*time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance", nil)
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Sessions []SessionResponse `json:"sessions"`
		Count    int               `json:"count"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.Count != 1 {
		t.Fatalf("expected 1 session, got %d", result.Count)
	}
	s := result.Sessions[0]
	if s.PersonName != "Alice" || s.Day != "2024-05-20" || s.Open {
		t.Errorf("unexpected session: %+v", s)
	}
}

func TestAttendanceHandler_List_InvalidFilter(t *testing.T) {
	service, _, _ := testService(t)
	handler := NewAttendanceHandler(service)

	for _, query := range []string{"?from=yesterday", "?person_id=abc", "?limit=-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance"+query, nil)
		recorder := httptest.NewRecorder()
		handler.List(recorder, req)
		assertStatusCode(t, recorder, http.StatusBadRequest)
	}
}

func TestAttendanceHandler_Today(t *testing.T) {
	service, _, _ := testService(t)
	handler := NewAttendanceHandler(service)

	now := time.Now().UTC()
	recordDay(t, handler, "Alice", now.Add(-2*time.Hour), now.Add(-time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/today", nil)
	recorder := httptest.NewRecorder()
	handler.Today(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Day            string  `json:"day"`
		TotalActive    int     `json:"total_active"`
		CheckedIn      int     `json:"checked_in"`
		SessionCount   int     `json:"session_count"`
		AttendanceRate float64 `json:"attendance_rate"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.CheckedIn != 1 || result.SessionCount != 1 || result.TotalActive != 1 {
		t.Errorf("unexpected summary: %+v", result)
	}
	if result.AttendanceRate != 1.0 {
		t.Errorf("expected attendance rate 1.0, got %f", result.AttendanceRate)
	}
}

func TestAttendanceHandler_Export(t *testing.T) {
	service, _, _ := testService(t)
	handler := NewAttendanceHandler(service)

	open := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	recordDay(t, handler, "Jan Novák", open, open.Add(8*time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/export", nil)
	recorder := httptest.NewRecorder()
	handler.Export(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if ct := recorder.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %s", ct)
	}

	lines := strings.Split(strings.TrimSpace(recorder.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "day,name,") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "Jan Novák") || !strings.Contains(lines[1], "8.00") {
		t.Errorf("unexpected row: %s", lines[1])
	}
}

func TestAttendanceHandler_Durations(t *testing.T) {
	service, _, _ := testService(t)
	handler := NewAttendanceHandler(service)

	open := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	recordDay(t, handler, "Alice", open, open.Add(6*time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/durations?from_day=2024-05-20&to_day=2024-05-20", nil)
	recorder := httptest.NewRecorder()
	handler.Durations(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		FromDay   string `json:"from_day"`
		ToDay     string `json:"to_day"`
		Durations []struct {
			PersonName string  `json:"person_name"`
			Sessions   int     `json:"sessions"`
			TotalHours float64 `json:"total_hours"`
		} `json:"durations"`
	}
	parseJSONResponse(t, recorder, &result)
	if len(result.Durations) != 1 {
		t.Fatalf("expected 1 duration row, got %d", len(result.Durations))
	}
	d := result.Durations[0]
	if d.PersonName != "Alice" || d.Sessions != 1 || d.TotalHours != 6 {
		t.Errorf("unexpected duration: %+v", d)
	}
}

// brokenResponseWriter fails every body write, like a client that hung up
// mid-download.
type brokenResponseWriter struct {
	header http.Header
}

func (w *brokenResponseWriter) Header() http.Header        { return w.header }
func (w *brokenResponseWriter) WriteHeader(statusCode int) {}
func (w *brokenResponseWriter) Write(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestAttendanceHandler_Export_WriteFailureLogged(t *testing.T) {
	service, _, _ := testService(t)
	handler := NewAttendanceHandler(service)

	open := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	recordDay(t, handler, "Alice", open, open.Add(8*time.Hour))

	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/export", nil)
	handler.Export(&brokenResponseWriter{header: make(http.Header)}, req)

	if !strings.Contains(logged.String(), "writing attendance CSV") {
		t.Errorf("expected the CSV write failure to be logged, got %q", logged.String())
	}
}
