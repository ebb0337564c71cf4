// Package memory provides in-memory implementations of the database
// interfaces, used by unit tests and the --memory development mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/normalize"
)

// IdentityStore is an in-memory database.IdentityWriter.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]*database.StoredIdentity
	order      []uuid.UUID // enrollment order, the snapshot iteration order

	// Error injection
	EnrollError   error
	GetError      error
	ListError     error
	SnapshotError error
}

// NewIdentityStore creates an empty in-memory identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[uuid.UUID]*database.StoredIdentity),
	}
}

// Enroll persists a new identity, enforcing external reference uniqueness
// among active identities under the store lock.
func (s *IdentityStore) Enroll(ctx context.Context, identity *database.StoredIdentity) error {
	if s.EnrollError != nil {
		return s.EnrollError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity.ExternalRef != "" {
		for _, existing := range s.identities {
			if existing.Active && existing.ExternalRef == identity.ExternalRef {
				return database.ErrDuplicateExternalRef
			}
		}
	}

	stored := *identity
	stored.Embedding = append([]float32(nil), identity.Embedding...)
	s.identities[stored.ID] = &stored
	s.order = append(s.order, stored.ID)
	return nil
}

// Get retrieves an identity by id.
func (s *IdentityStore) Get(ctx context.Context, id uuid.UUID) (*database.StoredIdentity, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, database.ErrIdentityNotFound
	}
	copied := *identity
	return &copied, nil
}

// List returns identities in enrollment order.
func (s *IdentityStore) List(ctx context.Context, activeOnly bool, nameQuery string) ([]database.StoredIdentity, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := normalize.PersonName(nameQuery)
	var result []database.StoredIdentity
	for _, id := range s.order {
		identity := s.identities[id]
		if activeOnly && !identity.Active {
			continue
		}
		if query != "" && !strings.Contains(normalize.PersonName(identity.Name), query) {
			continue
		}
		result = append(result, *identity)
	}
	return result, nil
}

// ActiveSnapshot returns active identities' embeddings in enrollment order.
func (s *IdentityStore) ActiveSnapshot(ctx context.Context) (database.CandidateSet, error) {
	if s.SnapshotError != nil {
		return nil, s.SnapshotError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(database.CandidateSet, 0, len(s.order))
	for _, id := range s.order {
		identity := s.identities[id]
		if !identity.Active {
			continue
		}
		snapshot = append(snapshot, database.Candidate{
			ID:        identity.ID,
			Name:      identity.Name,
			Embedding: append([]float32(nil), identity.Embedding...),
		})
	}
	return snapshot, nil
}

// CountActive returns the number of active identities.
func (s *IdentityStore) CountActive(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, identity := range s.identities {
		if identity.Active {
			count++
		}
	}
	return count, nil
}

// Update changes display fields; the embedding is left untouched.
func (s *IdentityStore) Update(ctx context.Context, identity *database.StoredIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.identities[identity.ID]
	if !ok {
		return database.ErrIdentityNotFound
	}
	if identity.ExternalRef != "" && identity.ExternalRef != existing.ExternalRef {
		for _, other := range s.identities {
			if other.ID != identity.ID && other.Active && other.ExternalRef == identity.ExternalRef {
				return database.ErrDuplicateExternalRef
			}
		}
	}
	existing.Name = identity.Name
	existing.Department = identity.Department
	existing.ExternalRef = identity.ExternalRef
	existing.Active = identity.Active
	existing.UpdatedAt = identity.UpdatedAt
	return nil
}

// Deactivate marks an identity inactive. Idempotent.
func (s *IdentityStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return database.ErrIdentityNotFound
	}
	identity.Active = false
	return nil
}

// SessionStore is an in-memory database.SessionRepository. All state
// transitions happen under a single lock, giving the same serialization
// guarantee the postgres partial unique index provides.
type SessionStore struct {
	mu       sync.Mutex
	sessions []*database.StoredSession

	identities *IdentityStore // for joins and active counts in reports

	// ForceConflicts makes the next N ToggleScan calls report ScanConflict,
	// for exercising the caller's retry path.
	ForceConflicts int

	// Error injection
	ToggleError error
	ListError   error
}

// NewSessionStore creates an empty in-memory session store backed by the
// given identity store for report joins.
func NewSessionStore(identities *IdentityStore) *SessionStore {
	return &SessionStore{identities: identities}
}

// ToggleScan closes the open session for (identity, day) or inserts a new
// open one, as a single atomic step.
func (s *SessionStore) ToggleScan(ctx context.Context, scan database.ScanEvent) (*database.StoredSession, database.ScanToggle, error) {
	if s.ToggleError != nil {
		return nil, database.ScanConflict, s.ToggleError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ForceConflicts > 0 {
		s.ForceConflicts--
		return nil, database.ScanConflict, nil
	}

	for _, session := range s.sessions {
		if session.IdentityID == scan.IdentityID && session.Day == scan.Day && session.IsOpen() {
			closeTime := scan.At
			session.CloseTime = &closeTime
			copied := *session
			return &copied, database.ScanClosed, nil
		}
	}

	session := &database.StoredSession{
		ID:         scan.ID,
		IdentityID: scan.IdentityID,
		Day:        scan.Day,
		OpenTime:   scan.At,
		Confidence: scan.Confidence,
		Location:   scan.Location,
		CreatedAt:  time.Now(),
	}
	s.sessions = append(s.sessions, session)
	copied := *session
	return &copied, database.ScanOpened, nil
}

// OpenSession returns the open session for (identity, day), or nil.
func (s *SessionStore) OpenSession(ctx context.Context, identityID uuid.UUID, day string) (*database.StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.IdentityID == identityID && session.Day == day && session.IsOpen() {
			copied := *session
			return &copied, nil
		}
	}
	return nil, nil
}

// List returns sessions matching the filter, newest first.
func (s *SessionStore) List(ctx context.Context, filter database.SessionFilter) ([]database.SessionWithIdentity, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []database.SessionWithIdentity
	for _, session := range s.sessions {
		if filter.From != nil && session.OpenTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && session.OpenTime.After(*filter.To) {
			continue
		}
		if filter.IdentityID != nil && session.IdentityID != *filter.IdentityID {
			continue
		}
		row := database.SessionWithIdentity{StoredSession: *session}
		if s.identities != nil {
			if identity, err := s.identities.Get(ctx, session.IdentityID); err == nil {
				row.IdentityName = identity.Name
				row.ExternalRef = identity.ExternalRef
				row.Department = identity.Department
			}
		}
		result = append(result, row)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTime.After(result[j].OpenTime)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Summary aggregates attendance for one calendar day.
func (s *SessionStore) Summary(ctx context.Context, day string) (*database.DaySummary, error) {
	s.mu.Lock()
	checkedIn := make(map[uuid.UUID]struct{})
	sessionCount := 0
	for _, session := range s.sessions {
		if session.Day != day {
			continue
		}
		sessionCount++
		checkedIn[session.IdentityID] = struct{}{}
	}
	s.mu.Unlock()

	totalActive := 0
	if s.identities != nil {
		totalActive, _ = s.identities.CountActive(ctx)
	}

	return &database.DaySummary{
		Day:          day,
		TotalActive:  totalActive,
		CheckedIn:    len(checkedIn),
		SessionCount: sessionCount,
	}, nil
}

// Durations returns per-identity presence totals for an inclusive day range.
func (s *SessionStore) Durations(ctx context.Context, fromDay, toDay string) ([]database.IdentityDuration, error) {
	s.mu.Lock()
	totals := make(map[uuid.UUID]*database.IdentityDuration)
	var order []uuid.UUID
	for _, session := range s.sessions {
		if session.Day < fromDay || session.Day > toDay {
			continue
		}
		entry, ok := totals[session.IdentityID]
		if !ok {
			entry = &database.IdentityDuration{IdentityID: session.IdentityID}
			totals[session.IdentityID] = entry
			order = append(order, session.IdentityID)
		}
		entry.Sessions++
		if session.CloseTime != nil {
			entry.TotalHours += session.CloseTime.Sub(session.OpenTime).Hours()
		}
	}
	s.mu.Unlock()

	result := make([]database.IdentityDuration, 0, len(order))
	for _, id := range order {
		entry := totals[id]
		if s.identities != nil {
			if identity, err := s.identities.Get(ctx, id); err == nil {
				entry.IdentityName = identity.Name
			}
		}
		result = append(result, *entry)
	}
	return result, nil
}

// OpenCount returns the number of currently open sessions, for tests.
func (s *SessionStore) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, session := range s.sessions {
		if session.IsOpen() {
			count++
		}
	}
	return count
}

// ClosedCount returns the number of closed sessions, for tests.
func (s *SessionStore) ClosedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, session := range s.sessions {
		if !session.IsOpen() {
			count++
		}
	}
	return count
}
