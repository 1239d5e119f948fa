package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
	"github.com/jackc/pgx/v5"
)

// ValidatorRepository handles validator registry persistence. The
// source/linkedPeerId pair is mutated only through Link and Unlink so the
// reporting-iff-linked invariant cannot be violated by stake refreshes.
type ValidatorRepository struct {
	db *PostgresDB
}

// NewValidatorRepository creates a new validator repository
func NewValidatorRepository(db *PostgresDB) *ValidatorRepository {
	return &ValidatorRepository{db: db}
}

const validatorColumns = `
	baker_id, account_address, source, linked_peer_id, linked_node_name,
	equity_capital, delegated_capital, total_stake, lottery_power,
	blocks_24h, blocks_7d, blocks_30d,
	transactions_24h, transactions_7d, transactions_30d,
	in_current_payday, state_transition_count, first_observed, last_chain_update
`

// UpsertFromRegistry refreshes a validator's chain-sourced fields. New
// validators start as chain_only phantoms; existing rows keep their link
// state and rolling counters.
func (r *ValidatorRepository) UpsertFromRegistry(ctx context.Context, v *types.RegistryValidator, now time.Time) (created bool, err error) {
	query := `
		INSERT INTO validators (
			baker_id, account_address, source, equity_capital, delegated_capital,
			total_stake, lottery_power, in_current_payday, first_observed, last_chain_update
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (baker_id)
		DO UPDATE SET
			account_address = EXCLUDED.account_address,
			equity_capital = EXCLUDED.equity_capital,
			delegated_capital = EXCLUDED.delegated_capital,
			total_stake = EXCLUDED.total_stake,
			lottery_power = EXCLUDED.lottery_power,
			in_current_payday = EXCLUDED.in_current_payday,
			last_chain_update = EXCLUDED.last_chain_update
		RETURNING (xmax = 0)
	`

	err = r.db.Pool().QueryRow(ctx, query,
		v.BakerID,
		v.AccountAddress,
		types.ValidatorChainOnly,
		v.EquityCapital,
		v.DelegatedCapital,
		v.TotalStake,
		v.LotteryPower,
		v.InCurrentPayday,
		now,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert validator: %w", err)
	}

	return created, nil
}

// GetByBakerID retrieves one validator
func (r *ValidatorRepository) GetByBakerID(ctx context.Context, bakerID uint64) (*models.Validator, error) {
	query := `SELECT ` + validatorColumns + ` FROM validators WHERE baker_id = $1`

	v, err := scanValidator(r.db.Pool().QueryRow(ctx, query, bakerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get validator: %w", err)
	}
	return v, nil
}

// GetAll retrieves every validator ordered by baker ID
func (r *ValidatorRepository) GetAll(ctx context.Context) ([]*models.Validator, error) {
	query := `SELECT ` + validatorColumns + ` FROM validators ORDER BY baker_id`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list validators: %w", err)
	}
	defer rows.Close()

	var validators []*models.Validator
	for rows.Next() {
		v, err := scanValidator(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan validator: %w", err)
		}
		validators = append(validators, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating validators: %w", err)
	}

	return validators, nil
}

// Link attaches a reporting peer to a validator, flipping it to the
// reporting source. Returns false when the validator was already linked;
// the transition counter only moves on an actual flip.
func (r *ValidatorRepository) Link(ctx context.Context, bakerID uint64, peerID, nodeName string) (bool, error) {
	query := `
		UPDATE validators
		SET source = $2, linked_peer_id = $3, linked_node_name = $4,
			state_transition_count = state_transition_count + 1
		WHERE baker_id = $1 AND source = $5
	`

	result, err := r.db.Pool().Exec(ctx, query,
		bakerID, types.ValidatorReporting, peerID, nodeName, types.ValidatorChainOnly)
	if err != nil {
		return false, fmt.Errorf("failed to link validator: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Unlink degrades a reporting validator back to a chain_only phantom when
// its linked peer disappears. Rolling counters are preserved.
func (r *ValidatorRepository) Unlink(ctx context.Context, bakerID uint64) (bool, error) {
	query := `
		UPDATE validators
		SET source = $2, linked_peer_id = NULL, linked_node_name = NULL,
			state_transition_count = state_transition_count + 1
		WHERE baker_id = $1 AND source = $3
	`

	result, err := r.db.Pool().Exec(ctx, query,
		bakerID, types.ValidatorChainOnly, types.ValidatorReporting)
	if err != nil {
		return false, fmt.Errorf("failed to unlink validator: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// RollingCounts holds recomputed block and transaction counters per window
type RollingCounts struct {
	Blocks24h       int64
	Blocks7d        int64
	Blocks30d       int64
	Transactions24h int64
	Transactions7d  int64
	Transactions30d int64
}

// ResetRollingCounts zeroes every validator's rolling counters. Used as the
// first step of a full recount so bakers with no recent blocks do not keep
// stale values.
func (r *ValidatorRepository) ResetRollingCounts(ctx context.Context) error {
	query := `
		UPDATE validators
		SET blocks_24h = 0, blocks_7d = 0, blocks_30d = 0,
			transactions_24h = 0, transactions_7d = 0, transactions_30d = 0
	`
	if _, err := r.db.Pool().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to reset rolling counts: %w", err)
	}
	return nil
}

// SetRollingCounts writes the recomputed counters for one baker
func (r *ValidatorRepository) SetRollingCounts(ctx context.Context, bakerID uint64, counts *RollingCounts) error {
	query := `
		UPDATE validators
		SET blocks_24h = $2, blocks_7d = $3, blocks_30d = $4,
			transactions_24h = $5, transactions_7d = $6, transactions_30d = $7
		WHERE baker_id = $1
	`

	_, err := r.db.Pool().Exec(ctx, query,
		bakerID,
		counts.Blocks24h, counts.Blocks7d, counts.Blocks30d,
		counts.Transactions24h, counts.Transactions7d, counts.Transactions30d,
	)
	if err != nil {
		return fmt.Errorf("failed to set rolling counts: %w", err)
	}
	return nil
}

func scanValidator(row rowScanner) (*models.Validator, error) {
	var v models.Validator
	err := row.Scan(
		&v.BakerID,
		&v.AccountAddress,
		&v.Source,
		&v.LinkedPeerID,
		&v.LinkedNodeName,
		&v.EquityCapital,
		&v.DelegatedCapital,
		&v.TotalStake,
		&v.LotteryPower,
		&v.Blocks24h,
		&v.Blocks7d,
		&v.Blocks30d,
		&v.Transactions24h,
		&v.Transactions7d,
		&v.Transactions30d,
		&v.InCurrentPayday,
		&v.StateTransitionCount,
		&v.FirstObserved,
		&v.LastChainUpdate,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
