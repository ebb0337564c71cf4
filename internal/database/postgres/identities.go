package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/normalize"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository provides PostgreSQL-backed identity storage. Embeddings
// are stored as pgvector columns.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = "id, name, external_ref, department, embedding, active, enrolled_at, updated_at"

func scanIdentity(row interface{ Scan(...any) error }) (*database.StoredIdentity, error) {
	var identity database.StoredIdentity
	var vec pgvector.Vector

	err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.ExternalRef,
		&identity.Department,
		&vec,
		&identity.Active,
		&identity.EnrolledAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	identity.Embedding = vec.Slice()
	return &identity, nil
}

// isUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Enroll persists a new identity. The partial unique index on external_ref
// makes the uniqueness check and the insert a single atomic operation.
func (r *IdentityRepository) Enroll(ctx context.Context, identity *database.StoredIdentity) error {
	query := `
		INSERT INTO identities (id, name, name_normalized, external_ref, department, embedding, active, enrolled_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::vector, $7, $8, NOW())
	`

	vec := pgvector.NewVector(identity.Embedding)
	_, err := r.pool.Exec(ctx, query,
		identity.ID,
		identity.Name,
		normalize.PersonName(identity.Name),
		identity.ExternalRef,
		identity.Department,
		vec,
		identity.Active,
		identity.EnrolledAt,
	)
	if isUniqueViolation(err) {
		return database.ErrDuplicateExternalRef
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// Get retrieves an identity by id.
func (r *IdentityRepository) Get(ctx context.Context, id uuid.UUID) (*database.StoredIdentity, error) {
	query := "SELECT " + identityColumns + " FROM identities WHERE id = $1"

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// List returns identities in enrollment order, optionally restricted to
// active ones and filtered by normalized name substring.
func (r *IdentityRepository) List(ctx context.Context, activeOnly bool, nameQuery string) ([]database.StoredIdentity, error) {
	var conditions []string
	var args []any

	if activeOnly {
		conditions = append(conditions, "active")
	}
	if q := normalize.PersonName(nameQuery); q != "" {
		args = append(args, "%"+q+"%")
		conditions = append(conditions, fmt.Sprintf("name_normalized LIKE $%d", len(args)))
	}

	query := "SELECT " + identityColumns + " FROM identities"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY enrolled_at, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []database.StoredIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// ActiveSnapshot returns active identities' embeddings in enrollment order.
func (r *IdentityRepository) ActiveSnapshot(ctx context.Context) (database.CandidateSet, error) {
	query := `
		SELECT id, name, embedding
		FROM identities
		WHERE active
		ORDER BY enrolled_at, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var snapshot database.CandidateSet
	for rows.Next() {
		var candidate database.Candidate
		var vec pgvector.Vector
		if err := rows.Scan(&candidate.ID, &candidate.Name, &vec); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidate.Embedding = vec.Slice()
		snapshot = append(snapshot, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return snapshot, nil
}

// CountActive returns the number of active identities.
func (r *IdentityRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities WHERE active").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active identities: %w", err)
	}
	return count, nil
}

// Update changes display fields; the embedding column is never touched.
func (r *IdentityRepository) Update(ctx context.Context, identity *database.StoredIdentity) error {
	query := `
		UPDATE identities
		SET name = $2, name_normalized = $3, external_ref = $4, department = $5, active = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		identity.ID,
		identity.Name,
		normalize.PersonName(identity.Name),
		identity.ExternalRef,
		identity.Department,
		identity.Active,
		identity.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return database.ErrDuplicateExternalRef
	}
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrIdentityNotFound
	}
	return nil
}

// Deactivate marks an identity inactive. Idempotent; history is kept.
func (r *IdentityRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, "UPDATE identities SET active = FALSE, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate identity rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrIdentityNotFound
	}
	return nil
}

// Verify interface compliance
var _ database.IdentityWriter = (*IdentityRepository)(nil)
