package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/storage"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// BlockStore is the block persistence surface the tracker needs
type BlockStore interface {
	Insert(ctx context.Context, block *models.Block) (bool, error)
	MaxHeight(ctx context.Context) (*uint64, error)
	ProductionSince(ctx context.Context, cutoff time.Time) ([]storage.BakerProduction, error)
}

// ValidatorLookup is the validator surface the block tracker needs: existence
// checks during attribution and counter writes during recalculation.
type ValidatorLookup interface {
	GetByBakerID(ctx context.Context, bakerID uint64) (*models.Validator, error)
	ResetRollingCounts(ctx context.Context) error
	SetRollingCounts(ctx context.Context, bakerID uint64, counts *storage.RollingCounts) error
}

// BlockTracker ingests finalized blocks and maintains per-baker rolling
// production counters.
type BlockTracker struct {
	blocks     BlockStore
	validators ValidatorLookup
	logger     *logging.Logger
}

// NewBlockTracker creates a new block tracker
func NewBlockTracker(blocks BlockStore, validators ValidatorLookup, logger *logging.Logger) *BlockTracker {
	return &BlockTracker{
		blocks:     blocks,
		validators: validators,
		logger:     logger.WithField("component", "block_tracker"),
	}
}

// BlockProcessResult summarizes one block ingestion pass
type BlockProcessResult struct {
	BlocksProcessed   int      `json:"blocksProcessed"`
	UniqueBakers      int      `json:"uniqueBakers"`
	UnknownBakers     []uint64 `json:"unknownBakers"`
	SkippedDuplicates int      `json:"skippedDuplicates"`
}

// GetLatestBlockHeight returns the highest ingested height, or nil on cold
// start when no blocks have been recorded.
func (t *BlockTracker) GetLatestBlockHeight(ctx context.Context) (*uint64, error) {
	return t.blocks.MaxHeight(ctx)
}

// ProcessBlocks ingests a batch of blocks. Already-known heights are counted
// as skipped duplicates, so re-processing a range after a retried trigger is
// a safe no-op. Blocks from bakers without a validator row are still stored;
// validator linkage is allowed to lag block discovery.
func (t *BlockTracker) ProcessBlocks(ctx context.Context, blocks []types.ChainBlock) (*BlockProcessResult, error) {
	result := &BlockProcessResult{
		UnknownBakers: []uint64{},
	}

	bakers := make(map[uint64]bool)
	unknownSeen := make(map[uint64]bool)

	for i := range blocks {
		block := &blocks[i]

		inserted, err := t.blocks.Insert(ctx, &models.Block{
			Height:           block.Height,
			Hash:             block.Hash,
			BakerID:          block.BakerID,
			Timestamp:        block.Timestamp,
			TransactionCount: block.TransactionCount,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store block %d: %w", block.Height, err)
		}
		if !inserted {
			result.SkippedDuplicates++
			continue
		}

		result.BlocksProcessed++
		bakers[block.BakerID] = true

		if !unknownSeen[block.BakerID] {
			validator, err := t.validators.GetByBakerID(ctx, block.BakerID)
			if err != nil {
				return nil, fmt.Errorf("failed to look up baker %d: %w", block.BakerID, err)
			}
			if validator == nil {
				unknownSeen[block.BakerID] = true
				result.UnknownBakers = append(result.UnknownBakers, block.BakerID)
			}
		}
	}

	result.UniqueBakers = len(bakers)

	t.logger.WithFields(map[string]interface{}{
		"processed":  result.BlocksProcessed,
		"duplicates": result.SkippedDuplicates,
		"bakers":     result.UniqueBakers,
	}).Debug("Processed block batch")

	return result, nil
}

// RecalculateBlockCounts recomputes every baker's rolling block and
// transaction counters from stored blocks against the current wall clock.
// Idempotent for unchanged data and safe to re-run after any failure; it is
// also called independently of ingestion to repair drift.
func (t *BlockTracker) RecalculateBlockCounts(ctx context.Context) error {
	now := time.Now().UTC()

	windows := []struct {
		cutoff time.Time
		apply  func(counts *storage.RollingCounts, p storage.BakerProduction)
	}{
		{now.Add(-24 * time.Hour), func(c *storage.RollingCounts, p storage.BakerProduction) {
			c.Blocks24h, c.Transactions24h = p.Blocks, p.Transactions
		}},
		{now.Add(-7 * 24 * time.Hour), func(c *storage.RollingCounts, p storage.BakerProduction) {
			c.Blocks7d, c.Transactions7d = p.Blocks, p.Transactions
		}},
		{now.Add(-30 * 24 * time.Hour), func(c *storage.RollingCounts, p storage.BakerProduction) {
			c.Blocks30d, c.Transactions30d = p.Blocks, p.Transactions
		}},
	}

	perBaker := make(map[uint64]*storage.RollingCounts)
	for _, window := range windows {
		production, err := t.blocks.ProductionSince(ctx, window.cutoff)
		if err != nil {
			return fmt.Errorf("failed to aggregate production: %w", err)
		}
		for _, p := range production {
			counts, ok := perBaker[p.BakerID]
			if !ok {
				counts = &storage.RollingCounts{}
				perBaker[p.BakerID] = counts
			}
			window.apply(counts, p)
		}
	}

	if err := t.validators.ResetRollingCounts(ctx); err != nil {
		return err
	}

	for bakerID, counts := range perBaker {
		if err := t.validators.SetRollingCounts(ctx, bakerID, counts); err != nil {
			return fmt.Errorf("failed to write counts for baker %d: %w", bakerID, err)
		}
	}

	t.logger.WithField("bakers", len(perBaker)).Debug("Recalculated rolling block counts")

	return nil
}
