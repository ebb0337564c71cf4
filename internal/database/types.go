package database

import (
	"time"

	"github.com/google/uuid"
)

// StoredIdentity represents an enrolled identity and its face embedding.
// The embedding is immutable once stored; re-enrollment creates a new record.
type StoredIdentity struct {
	ID          uuid.UUID
	Name        string
	ExternalRef string // optional badge/employee number, unique among active identities
	Department  string
	Embedding   []float32
	Active      bool
	EnrolledAt  time.Time
	UpdatedAt   time.Time
}

// Candidate is one entry of a match snapshot.
type Candidate struct {
	ID        uuid.UUID
	Name      string
	Embedding []float32
}

// CandidateSet is an immutable point-in-time snapshot of active identities'
// embeddings, ordered by enrollment (enrolled_at, id). The order is the
// tie-break order for the matcher and must be stable across calls.
type CandidateSet []Candidate

// StoredSession represents one attendance session (a check-in/check-out pair).
// A session with a nil CloseTime is open; once closed it is terminal.
type StoredSession struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Day        string // calendar day key, YYYY-MM-DD in the configured zone
	OpenTime   time.Time
	CloseTime  *time.Time
	Confidence float64 // match confidence at open
	Location   string
	Note       string
	CreatedAt  time.Time
}

// IsOpen reports whether the session has no check-out yet.
func (s *StoredSession) IsOpen() bool {
	return s.CloseTime == nil
}

// ScanEvent carries everything a scan toggle needs. ID is used for the
// session row if the toggle opens a new session.
type ScanEvent struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Day        string
	At         time.Time
	Confidence float64
	Location   string
}

// ScanToggle is the outcome of the conditional scan write.
type ScanToggle int

const (
	// ScanOpened means no open session existed and a new one was created.
	ScanOpened ScanToggle = iota
	// ScanClosed means the open session for (identity, day) was closed.
	ScanClosed
	// ScanConflict means a concurrent writer won the conditional write;
	// the caller should re-read and retry once.
	ScanConflict
)

// SessionFilter narrows attendance queries. Nil fields are ignored.
type SessionFilter struct {
	From       *time.Time
	To         *time.Time
	IdentityID *uuid.UUID
	Limit      int
	Offset     int
}

// SessionWithIdentity joins a session with its identity's display fields.
type SessionWithIdentity struct {
	StoredSession
	IdentityName string
	ExternalRef  string
	Department   string
}

// DaySummary aggregates attendance for one calendar day.
type DaySummary struct {
	Day          string
	TotalActive  int // active identities at query time
	CheckedIn    int // distinct identities with at least one session that day
	SessionCount int
}

// IdentityDuration is the per-identity total presence within a range.
// Open sessions contribute zero duration until closed.
type IdentityDuration struct {
	IdentityID   uuid.UUID
	IdentityName string
	Sessions     int
	TotalHours   float64
}
