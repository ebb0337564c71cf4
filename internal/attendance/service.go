package attendance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"golang.org/x/sync/errgroup"
)

// Capture is one face extracted from a source frame by the external
// embedding service: the embedding plus its bounding box in pixels.
type Capture struct {
	Embedding []float32 `json:"embedding"`
	Box       []float64 `json:"box,omitempty"` // [x1, y1, x2, y2]
	Score     float64   `json:"score,omitempty"`
}

// CheckInAction says which way a scan toggled the session.
type CheckInAction string

const (
	ActionCheckedIn  CheckInAction = "checked_in"
	ActionCheckedOut CheckInAction = "checked_out"
)

// CheckInResult is the outcome of a successful check-in scan.
type CheckInResult struct {
	Identity   *database.StoredIdentity
	Session    *database.StoredSession
	Confidence float64
	Action     CheckInAction
}

// Detection is one recognized (or unrecognized) face in a detect request.
type Detection struct {
	Box        []float64  `json:"box,omitempty"`
	Score      float64    `json:"score,omitempty"`
	IdentityID *uuid.UUID `json:"identity_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// Service wires the enrollment store, the matcher and the session state
// machine together. It is safe for concurrent use; the matcher path takes a
// snapshot per request and the session toggle is serialized by storage.
type Service struct {
	identities database.IdentityWriter
	sessions   database.SessionRepository
	matcher    *Matcher
	clock      *DayClock
	dim        int
	index      *CandidateIndex // nil unless ANN pre-selection is enabled
}

// NewService creates the attendance service from configuration.
func NewService(cfg *config.Config, identities database.IdentityWriter, sessions database.SessionRepository) (*Service, error) {
	clock, err := NewDayClock(cfg.Attendance.Timezone)
	if err != nil {
		return nil, err
	}

	s := &Service{
		identities: identities,
		sessions:   sessions,
		matcher:    NewMatcher(cfg.Recognition.Threshold),
		clock:      clock,
		dim:        cfg.Recognition.Dim,
	}
	if cfg.Recognition.ANN {
		s.index = NewCandidateIndex()
	}
	return s, nil
}

// Clock returns the configured day clock.
func (s *Service) Clock() *DayClock {
	return s.clock
}

// WarmIndex builds the ANN index from the current active snapshot.
// No-op when ANN pre-selection is disabled.
func (s *Service) WarmIndex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	snapshot, err := s.identities.ActiveSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot for index: %w", err)
	}
	s.index.Build(snapshot)
	return nil
}

// validateEmbedding enforces the dimension and finiteness invariants at the
// enrollment boundary, so match time never sees a malformed vector.
func (s *Service) validateEmbedding(embedding []float32) error {
	if len(embedding) != s.dim {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidEmbedding, s.dim, len(embedding))
	}
	for _, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidEmbedding)
		}
	}
	return nil
}

// Enroll registers a new identity with its embedding. The uniqueness check
// on the external reference and the insert are atomic in storage; on any
// failure no partial state remains.
func (s *Service) Enroll(ctx context.Context, name, externalRef, department string, embedding []float32) (*database.StoredIdentity, error) {
	if err := s.validateEmbedding(embedding); err != nil {
		return nil, err
	}

	identity := &database.StoredIdentity{
		ID:          uuid.New(),
		Name:        name,
		ExternalRef: externalRef,
		Department:  department,
		Embedding:   embedding,
		Active:      true,
		EnrolledAt:  time.Now(),
	}

	if err := s.identities.Enroll(ctx, identity); err != nil {
		return nil, err
	}

	if s.index != nil {
		s.index.Add(database.Candidate{ID: identity.ID, Name: identity.Name, Embedding: identity.Embedding})
	}
	return identity, nil
}

// Deactivate marks an identity inactive. Idempotent; attendance history is kept.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.identities.Deactivate(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		s.index.Remove(id)
	}
	return nil
}

// Update changes an identity's display fields. The embedding is immutable.
func (s *Service) Update(ctx context.Context, identity *database.StoredIdentity) error {
	identity.UpdatedAt = time.Now()
	return s.identities.Update(ctx, identity)
}

// Person retrieves a single identity.
func (s *Service) Person(ctx context.Context, id uuid.UUID) (*database.StoredIdentity, error) {
	return s.identities.Get(ctx, id)
}

// Persons lists identities, optionally active-only, with an optional
// diacritic-insensitive name filter.
func (s *Service) Persons(ctx context.Context, activeOnly bool, nameQuery string) ([]database.StoredIdentity, error) {
	return s.identities.List(ctx, activeOnly, nameQuery)
}

// match runs the matcher against the given snapshot. For large rosters the
// ANN index pre-selects the nearest candidates so unrecognized faces are
// rejected without scanning everything; HNSW recall is approximate, so an
// accepted match is never taken from the subset. Every accept comes from the
// exact scan over the full snapshot, keeping the winner and confidence
// identical to the linear scan.
func (s *Service) match(query []float32, snapshot database.CandidateSet) MatchResult {
	if s.index != nil && s.index.Len() >= annMinCandidates {
		if ids := s.index.Select(query, annSelectK); len(ids) > 0 {
			selected := make(map[uuid.UUID]struct{}, len(ids))
			for _, id := range ids {
				selected[id] = struct{}{}
			}
			subset := make(database.CandidateSet, 0, len(ids))
			for i := range snapshot {
				if _, ok := selected[snapshot[i].ID]; ok {
					subset = append(subset, snapshot[i])
				}
			}
			if result := s.matcher.Match(query, subset); !result.Matched {
				return result
			}
		}
	}
	return s.matcher.Match(query, snapshot)
}

// CheckIn resolves a capture to exactly one embedding, matches it against
// the active roster and advances the attendance session state machine.
// Nothing is mutated unless a match is accepted.
func (s *Service) CheckIn(ctx context.Context, captures []Capture, at time.Time, location string) (*CheckInResult, error) {
	if len(captures) == 0 {
		return nil, ErrNoFaceDetected
	}
	if len(captures) > 1 {
		return nil, ErrAmbiguousCapture
	}
	if err := s.validateEmbedding(captures[0].Embedding); err != nil {
		return nil, err
	}

	snapshot, err := s.identities.ActiveSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading candidate snapshot: %w", err)
	}

	result := s.match(captures[0].Embedding, snapshot)
	if !result.Matched {
		return nil, ErrNotRecognized
	}

	// The identity read happens before the toggle so a storage failure here
	// cannot leave the session state mutated behind an error response.
	identity, err := s.identities.Get(ctx, result.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("loading matched identity: %w", err)
	}

	session, toggle, err := s.RecordScan(ctx, result.IdentityID, at, result.Confidence, location)
	if err != nil {
		return nil, err
	}

	action := ActionCheckedIn
	if toggle == database.ScanClosed {
		action = ActionCheckedOut
	}

	return &CheckInResult{
		Identity:   identity,
		Session:    session,
		Confidence: result.Confidence,
		Action:     action,
	}, nil
}

// RecordScan advances the per-(identity, day) session state machine: it
// opens a session when none is open and closes the open one otherwise. The
// conditional write is retried once on conflict; a second conflict surfaces
// as ErrStorageConflict with no further retries.
func (s *Service) RecordScan(ctx context.Context, identityID uuid.UUID, at time.Time, confidence float64, location string) (*database.StoredSession, database.ScanToggle, error) {
	scan := database.ScanEvent{
		IdentityID: identityID,
		Day:        s.clock.Day(at),
		At:         at,
		Confidence: confidence,
		Location:   location,
	}

	for attempt := 0; attempt < 2; attempt++ {
		scan.ID = uuid.New()
		session, toggle, err := s.sessions.ToggleScan(ctx, scan)
		if err != nil {
			return nil, toggle, fmt.Errorf("recording scan: %w", err)
		}
		if toggle != database.ScanConflict {
			return session, toggle, nil
		}
	}
	return nil, database.ScanConflict, ErrStorageConflict
}

// Detect matches every capture against the active roster without touching
// session state. Captures are matched in parallel against one shared
// snapshot; the result order mirrors the input order.
func (s *Service) Detect(ctx context.Context, captures []Capture) ([]Detection, error) {
	snapshot, err := s.identities.ActiveSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading candidate snapshot: %w", err)
	}

	detections := make([]Detection, len(captures))
	g, _ := errgroup.WithContext(ctx)
	for i := range captures {
		i := i
		g.Go(func() error {
			capture := captures[i]
			detection := Detection{Box: capture.Box, Score: capture.Score}
			if len(capture.Embedding) == s.dim {
				if result := s.match(capture.Embedding, snapshot); result.Matched {
					id := result.IdentityID
					confidence := result.Confidence
					detection.IdentityID = &id
					detection.Name = result.Name
					detection.Confidence = &confidence
				}
			}
			detections[i] = detection
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detections, nil
}

// Sessions lists attendance sessions matching the filter, newest first.
func (s *Service) Sessions(ctx context.Context, filter database.SessionFilter) ([]database.SessionWithIdentity, error) {
	return s.sessions.List(ctx, filter)
}

// Today aggregates attendance for the current calendar day.
func (s *Service) Today(ctx context.Context) (*database.DaySummary, error) {
	return s.sessions.Summary(ctx, s.clock.Today())
}

// Durations returns per-identity presence totals for an inclusive day range.
func (s *Service) Durations(ctx context.Context, fromDay, toDay string) ([]database.IdentityDuration, error) {
	return s.sessions.Durations(ctx, fromDay, toDay)
}
