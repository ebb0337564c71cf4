package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/memory"
)

// testService creates an attendance service over in-memory stores.
func testService(t *testing.T) (*attendance.Service, *memory.IdentityStore, *memory.SessionStore) {
	t.Helper()
	cfg := &config.Config{
		Recognition: config.RecognitionConfig{Dim: 3, Threshold: 0.6},
		Attendance:  config.AttendanceConfig{Timezone: "UTC"},
	}
	identities := memory.NewIdentityStore()
	sessions := memory.NewSessionStore(identities)
	service, err := attendance.NewService(cfg, identities, sessions)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, identities, sessions
}

// stubExtractor returns canned captures for image uploads.
type stubExtractor struct {
	captures []attendance.Capture
	err      error
}

func (s *stubExtractor) Extract(ctx context.Context, imageData []byte) ([]attendance.Capture, error) {
	return s.captures, s.err
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
