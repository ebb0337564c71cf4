package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Storage-level sentinels. Implementations must return these (possibly
// wrapped) so callers can branch with errors.Is.
var (
	// ErrDuplicateExternalRef is returned by Enroll when the external
	// reference is already used by an active identity.
	ErrDuplicateExternalRef = errors.New("external reference already in use")
	// ErrIdentityNotFound is returned when the requested identity does not exist.
	ErrIdentityNotFound = errors.New("identity not found")
)

// IdentityReader provides read-only access to enrolled identities.
type IdentityReader interface {
	// Get retrieves an identity by id.
	Get(ctx context.Context, id uuid.UUID) (*StoredIdentity, error)
	// List returns identities, optionally restricted to active ones.
	// nameQuery, if non-empty, filters by normalized display name substring.
	List(ctx context.Context, activeOnly bool, nameQuery string) ([]StoredIdentity, error)
	// ActiveSnapshot returns a consistent point-in-time view of all active
	// identities' embeddings in enrollment order. Enrollments after the
	// snapshot is taken are invisible to it.
	ActiveSnapshot(ctx context.Context) (CandidateSet, error)
	// CountActive returns the number of active identities.
	CountActive(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to enrolled identities.
type IdentityWriter interface {
	IdentityReader

	// Enroll persists a new identity. The external reference uniqueness
	// check and the insert are a single atomic operation; on failure no
	// partial state remains.
	Enroll(ctx context.Context, identity *StoredIdentity) error
	// Update changes display fields (name, department, external ref).
	// The embedding is immutable and never touched by Update.
	Update(ctx context.Context, identity *StoredIdentity) error
	// Deactivate marks an identity inactive. Idempotent; history is kept.
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// SessionWriter performs the attendance state transitions.
type SessionWriter interface {
	// ToggleScan executes the check-and-act sequence for (identity, day) as
	// a single conditional write: it closes the open session if one exists,
	// otherwise inserts a new open one. Two racing writers never both
	// succeed on the same state; the loser observes ScanConflict and must
	// re-read by calling ToggleScan again.
	ToggleScan(ctx context.Context, scan ScanEvent) (*StoredSession, ScanToggle, error)
}

// SessionReader provides read-only access to attendance sessions.
type SessionReader interface {
	// OpenSession returns the open session for (identity, day), or nil.
	OpenSession(ctx context.Context, identityID uuid.UUID, day string) (*StoredSession, error)
	// List returns sessions matching the filter, newest first.
	List(ctx context.Context, filter SessionFilter) ([]SessionWithIdentity, error)
	// Summary aggregates attendance for one calendar day.
	Summary(ctx context.Context, day string) (*DaySummary, error)
	// Durations returns per-identity presence totals for a day range
	// (inclusive day keys).
	Durations(ctx context.Context, fromDay, toDay string) ([]IdentityDuration, error)
}

// SessionRepository combines session reads and the toggle write.
type SessionRepository interface {
	SessionReader
	SessionWriter
}
