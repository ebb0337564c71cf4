package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// SessionRepository provides PostgreSQL-backed attendance session storage.
// The scan toggle relies on the partial unique index over open sessions, so
// two racing writers never both succeed on the same state.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = "id, identity_id, day, open_time, close_time, confidence, location, note, created_at"

func scanSession(row interface{ Scan(...any) error }) (*database.StoredSession, error) {
	var session database.StoredSession
	err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&session.Day,
		&session.OpenTime,
		&session.CloseTime,
		&session.Confidence,
		&session.Location,
		&session.Note,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ToggleScan closes the open session for (identity, day) if one exists,
// otherwise inserts a new open one. Both branches are single conditional
// writes; a racing insert loses with a unique violation and is reported as
// ScanConflict so the caller can re-read.
func (r *SessionRepository) ToggleScan(ctx context.Context, scan database.ScanEvent) (*database.StoredSession, database.ScanToggle, error) {
	closeQuery := `
		UPDATE attendance_sessions
		SET close_time = $3
		WHERE identity_id = $1 AND day = $2 AND close_time IS NULL
		RETURNING ` + sessionColumns

	session, err := scanSession(r.pool.QueryRow(ctx, closeQuery, scan.IdentityID, scan.Day, scan.At))
	if err == nil {
		return session, database.ScanClosed, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, database.ScanConflict, fmt.Errorf("close session: %w", err)
	}

	insertQuery := `
		INSERT INTO attendance_sessions (id, identity_id, day, open_time, confidence, location)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + sessionColumns

	session, err = scanSession(r.pool.QueryRow(ctx, insertQuery,
		scan.ID, scan.IdentityID, scan.Day, scan.At, scan.Confidence, scan.Location))
	if err == nil {
		return session, database.ScanOpened, nil
	}
	if isUniqueViolation(err) {
		// A concurrent writer opened a session between our two statements.
		return nil, database.ScanConflict, nil
	}
	return nil, database.ScanConflict, fmt.Errorf("open session: %w", err)
}

// OpenSession returns the open session for (identity, day), or nil.
func (r *SessionRepository) OpenSession(ctx context.Context, identityID uuid.UUID, day string) (*database.StoredSession, error) {
	query := "SELECT " + sessionColumns + " FROM attendance_sessions WHERE identity_id = $1 AND day = $2 AND close_time IS NULL"

	session, err := scanSession(r.pool.QueryRow(ctx, query, identityID, day))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query open session: %w", err)
	}
	return session, nil
}

// Verify interface compliance
var _ database.SessionRepository = (*SessionRepository)(nil)
