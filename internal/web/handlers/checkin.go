package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// maxUploadSize limits camera frame uploads.
const maxUploadSize = 20 << 20 // 20 MB

// FaceExtractor turns a camera frame into face captures. Implemented by the
// extractor client; handler tests plug in a stub.
type FaceExtractor interface {
	Extract(ctx context.Context, imageData []byte) ([]attendance.Capture, error)
}

// CheckInHandler handles scan and detection requests.
type CheckInHandler struct {
	service   *attendance.Service
	extractor FaceExtractor
}

// NewCheckInHandler creates a new check-in handler.
func NewCheckInHandler(service *attendance.Service, extractor FaceExtractor) *CheckInHandler {
	return &CheckInHandler{service: service, extractor: extractor}
}

// scanRequest is the JSON body for pre-extracted embeddings. Image uploads
// use multipart form data instead.
type scanRequest struct {
	Captures []attendance.Capture `json:"captures"`
	Location string               `json:"location"`
}

// captures resolves the request into face captures, either by running the
// extractor on an uploaded image or by taking embeddings from the JSON body.
func (h *CheckInHandler) captures(r *http.Request) ([]attendance.Capture, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if h.extractor == nil {
			return nil, "", fmt.Errorf("image uploads are not supported without an extractor")
		}
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return nil, "", fmt.Errorf("parsing multipart form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("missing file part: %w", err)
		}
		defer file.Close()

		imageData, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
		if err != nil {
			return nil, "", fmt.Errorf("reading image: %w", err)
		}

		captures, err := h.extractor.Extract(r.Context(), imageData)
		if err != nil {
			return nil, "", fmt.Errorf("extracting faces: %w", err)
		}
		return captures, r.FormValue("location"), nil
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", fmt.Errorf("decoding request: %w", err)
	}
	return req.Captures, req.Location, nil
}

// CheckInResponse is the scan outcome.
type CheckInResponse struct {
	Action     attendance.CheckInAction `json:"action"`
	Person     PersonResponse           `json:"person"`
	Confidence float64                  `json:"confidence"`
	SessionID  uuid.UUID                `json:"session_id"`
	Day        string                   `json:"day"`
	OpenTime   time.Time                `json:"open_time"`
	CloseTime  *time.Time               `json:"close_time,omitempty"`
}

// CheckIn resolves a camera frame (or pre-extracted embedding) to one person
// and toggles their attendance session.
func (h *CheckInHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	captures, location, err := h.captures(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.CheckIn(r.Context(), captures, time.Now(), location)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CheckInResponse{
		Action:     result.Action,
		Person:     toPersonResponse(result.Identity),
		Confidence: result.Confidence,
		SessionID:  result.Session.ID,
		Day:        result.Session.Day,
		OpenTime:   result.Session.OpenTime,
		CloseTime:  result.Session.CloseTime,
	})
}

// Detect matches all faces in a frame against the roster without touching
// attendance state. Useful for camera placement and enrollment checks.
func (h *CheckInHandler) Detect(w http.ResponseWriter, r *http.Request) {
	captures, _, err := h.captures(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	detections, err := h.service.Detect(r.Context(), captures)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"faces_count": len(detections),
		"faces":       detections,
	})
}
