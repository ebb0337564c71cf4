package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// List returns sessions matching the filter, newest first, joined with the
// identity's display fields.
func (r *SessionRepository) List(ctx context.Context, filter database.SessionFilter) ([]database.SessionWithIdentity, error) {
	conditions := []string{"TRUE"}
	var args []any

	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("s.open_time >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("s.open_time <= $%d", len(args)))
	}
	if filter.IdentityID != nil {
		args = append(args, *filter.IdentityID)
		conditions = append(conditions, fmt.Sprintf("s.identity_id = $%d", len(args)))
	}

	query := `
		SELECT s.id, s.identity_id, s.day, s.open_time, s.close_time, s.confidence, s.location, s.note, s.created_at,
		       i.name, i.external_ref, i.department
		FROM attendance_sessions s
		JOIN identities i ON i.id = s.identity_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY s.open_time DESC, s.id
	`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.SessionWithIdentity
	for rows.Next() {
		var row database.SessionWithIdentity
		if err := rows.Scan(
			&row.ID,
			&row.IdentityID,
			&row.Day,
			&row.OpenTime,
			&row.CloseTime,
			&row.Confidence,
			&row.Location,
			&row.Note,
			&row.CreatedAt,
			&row.IdentityName,
			&row.ExternalRef,
			&row.Department,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Summary aggregates attendance for one calendar day.
func (r *SessionRepository) Summary(ctx context.Context, day string) (*database.DaySummary, error) {
	summary := &database.DaySummary{Day: day}

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT identity_id), COUNT(*)
		FROM attendance_sessions
		WHERE day = $1
	`, day).Scan(&summary.CheckedIn, &summary.SessionCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate day sessions: %w", err)
	}

	err = r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities WHERE active").Scan(&summary.TotalActive)
	if err != nil {
		return nil, fmt.Errorf("count active identities: %w", err)
	}

	return summary, nil
}

// Durations returns per-identity presence totals for an inclusive day range.
// Open sessions count toward Sessions but contribute zero hours.
func (r *SessionRepository) Durations(ctx context.Context, fromDay, toDay string) ([]database.IdentityDuration, error) {
	query := `
		SELECT s.identity_id, i.name, COUNT(*),
		       COALESCE(SUM(EXTRACT(EPOCH FROM (s.close_time - s.open_time))) / 3600, 0)
		FROM attendance_sessions s
		JOIN identities i ON i.id = s.identity_id
		WHERE s.day >= $1 AND s.day <= $2
		GROUP BY s.identity_id, i.name
		ORDER BY i.name, s.identity_id
	`

	rows, err := r.pool.Query(ctx, query, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("query durations: %w", err)
	}
	defer rows.Close()

	var durations []database.IdentityDuration
	for rows.Next() {
		var d database.IdentityDuration
		if err := rows.Scan(&d.IdentityID, &d.IdentityName, &d.Sessions, &d.TotalHours); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		durations = append(durations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate durations: %w", err)
	}
	return durations, nil
}
