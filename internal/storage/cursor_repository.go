package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/jackc/pgx/v5"
)

// CursorRepository handles poll cursor persistence. Jobs read their cursor
// at start and write it only once the whole cycle has succeeded, which is
// what makes a retried invocation safe.
type CursorRepository struct {
	db *PostgresDB
}

// NewCursorRepository creates a new cursor repository
func NewCursorRepository(db *PostgresDB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get retrieves a cursor by name. Returns nil without error when the cursor
// has never been written (cold start).
func (r *CursorRepository) Get(ctx context.Context, name string) (*models.PollCursor, error) {
	query := `SELECT name, value, updated_at FROM poll_cursors WHERE name = $1`

	var cursor models.PollCursor
	err := r.db.Pool().QueryRow(ctx, query, name).Scan(
		&cursor.Name,
		&cursor.Value,
		&cursor.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cursor %s: %w", name, err)
	}

	return &cursor, nil
}

// Set creates or replaces a cursor value
func (r *CursorRepository) Set(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO poll_cursors (name, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.Pool().Exec(ctx, query, name, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set cursor %s: %w", name, err)
	}

	return nil
}
