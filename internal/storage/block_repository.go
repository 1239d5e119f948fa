package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
)

// BlockRepository handles finalized block persistence. Height is the primary
// key, which is what makes re-ingestion of an already-seen range a no-op.
type BlockRepository struct {
	db *PostgresDB
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(db *PostgresDB) *BlockRepository {
	return &BlockRepository{db: db}
}

// Insert stores a block. Returns false without error when the height is
// already present (idempotent skip).
func (r *BlockRepository) Insert(ctx context.Context, block *models.Block) (bool, error) {
	query := `
		INSERT INTO blocks (height, hash, baker_id, timestamp, transaction_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (height) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		block.Height,
		block.Hash,
		block.BakerID,
		block.Timestamp,
		block.TransactionCount,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert block: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// MaxHeight returns the highest recorded block height, or nil when no
// blocks have been recorded yet (cold start).
func (r *BlockRepository) MaxHeight(ctx context.Context) (*uint64, error) {
	query := `SELECT MAX(height) FROM blocks`

	var height *int64
	if err := r.db.Pool().QueryRow(ctx, query).Scan(&height); err != nil {
		return nil, fmt.Errorf("failed to get max block height: %w", err)
	}
	if height == nil {
		return nil, nil
	}

	h := uint64(*height)
	return &h, nil
}

// Count returns the total number of stored blocks
func (r *BlockRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}
	return count, nil
}

// BakerProduction aggregates block and transaction counts for one baker
// over one window.
type BakerProduction struct {
	BakerID      uint64
	Blocks       int64
	Transactions int64
}

// ProductionSince aggregates per-baker block and transaction counts for all
// blocks with a timestamp at or after the cutoff.
func (r *BlockRepository) ProductionSince(ctx context.Context, cutoff time.Time) ([]BakerProduction, error) {
	query := `
		SELECT baker_id, COUNT(*), COALESCE(SUM(transaction_count), 0)
		FROM blocks
		WHERE timestamp >= $1
		GROUP BY baker_id
	`

	rows, err := r.db.Pool().Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate block production: %w", err)
	}
	defer rows.Close()

	var production []BakerProduction
	for rows.Next() {
		var p BakerProduction
		if err := rows.Scan(&p.BakerID, &p.Blocks, &p.Transactions); err != nil {
			return nil, fmt.Errorf("failed to scan block production: %w", err)
		}
		production = append(production, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating block production: %w", err)
	}

	return production, nil
}
