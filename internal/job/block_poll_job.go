package job

import (
	"context"
	"strconv"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/errors"
	"github.com/h4x0r/concordium-node-map-sub002/internal/fetch"
	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/tracker"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// ChainSource fetches chain state for the block poll
type ChainSource interface {
	GetFinalizedHeight(ctx context.Context) (uint64, error)
	GetBlocksInRange(ctx context.Context, from, to uint64) ([]types.ChainBlock, []fetch.BlockFetchError, error)
}

// BlockProcessor is the block tracker surface the job drives
type BlockProcessor interface {
	GetLatestBlockHeight(ctx context.Context) (*uint64, error)
	ProcessBlocks(ctx context.Context, blocks []types.ChainBlock) (*tracker.BlockProcessResult, error)
	RecalculateBlockCounts(ctx context.Context) error
}

// JobCursorStore persists per-job progress
type JobCursorStore interface {
	Get(ctx context.Context, name string) (*models.PollCursor, error)
	Set(ctx context.Context, name, value string) error
}

// ResultCache stores the last completed result per poll kind
type ResultCache interface {
	Store(ctx context.Context, kind string, result interface{}) error
}

// BlockPollJob ingests finalized blocks from the last recorded height up to
// the current chain head.
type BlockPollJob struct {
	chain      ChainSource
	blocks     BlockProcessor
	cursors    JobCursorStore
	cache      ResultCache
	lookback   uint64
	maxPerPoll uint64
	budget     time.Duration
	logger     *logging.Logger
}

// NewBlockPollJob creates a new block poll job
func NewBlockPollJob(chain ChainSource, blocks BlockProcessor, cursors JobCursorStore, cache ResultCache, lookback, maxPerPoll uint64, budget time.Duration, logger *logging.Logger) *BlockPollJob {
	return &BlockPollJob{
		chain:      chain,
		blocks:     blocks,
		cursors:    cursors,
		cache:      cache,
		lookback:   lookback,
		maxPerPoll: maxPerPoll,
		budget:     budget,
		logger:     logger.WithField("job", "block_poll"),
	}
}

// BlockTracking carries the block-poll payload
type BlockTracking struct {
	PreviousHeight    *uint64                 `json:"previousHeight"`
	LatestHeight      uint64                  `json:"latestHeight"`
	BlocksProcessed   int                     `json:"blocksProcessed"`
	UniqueBakers      int                     `json:"uniqueBakers"`
	UnknownBakers     []uint64                `json:"unknownBakers"`
	SkippedDuplicates int                     `json:"skippedDuplicates"`
	FetchErrors       []fetch.BlockFetchError `json:"fetchErrors,omitempty"`
}

// BlockPollResult is the job's structured result
type BlockPollResult struct {
	Success       bool           `json:"success"`
	Timestamp     time.Time      `json:"timestamp"`
	BlockTracking *BlockTracking `json:"blockTracking"`
	Timings       Timings        `json:"timings"`
}

// Run executes one block poll cycle. The resume height comes from the block
// cursor, falling back to the highest stored block when no cursor exists yet.
// On cold start the range is bounded to the configured lookback below the
// chain head instead of genesis. Partial per-height fetch failures are
// recorded and processing proceeds; a fully failed fetch aborts before any
// cursor moves.
func (j *BlockPollJob) Run(ctx context.Context) (*BlockPollResult, error) {
	if j.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.budget)
		defer cancel()
	}

	watch := newStopwatch()
	result := &BlockPollResult{Timestamp: time.Now().UTC()}

	previous, err := j.lastProcessedHeight(ctx)
	if err != nil {
		return nil, err
	}

	head, err := j.chain.GetFinalizedHeight(ctx)
	if err != nil {
		result.Timings = watch.done()
		return result, err
	}

	from := j.startHeight(previous, head)
	to := head
	if j.maxPerPoll > 0 && to-from+1 > j.maxPerPoll {
		to = from + j.maxPerPoll - 1
	}

	tracking := &BlockTracking{PreviousHeight: previous, LatestHeight: to, UnknownBakers: []uint64{}}
	result.BlockTracking = tracking

	if from > to {
		// Already at the head; nothing to ingest.
		watch.stage("fetchMs")
		result.Success = true
		result.Timings = watch.done()
		j.storeResult(ctx, result)
		return result, nil
	}

	blocks, fetchErrors, err := j.chain.GetBlocksInRange(ctx, from, to)
	watch.stage("fetchMs")
	if err != nil {
		result.Timings = watch.done()
		return result, err
	}
	tracking.FetchErrors = fetchErrors
	if len(fetchErrors) > 0 {
		j.logger.WithError(errors.NewPartialFetchError("chain rpc", len(fetchErrors), nil)).
			Warn("Proceeding with partial block fetch")
	}

	processed, err := j.blocks.ProcessBlocks(ctx, blocks)
	watch.stage("processMs")
	if err != nil {
		result.Timings = watch.done()
		return result, errors.Categorize(err)
	}
	tracking.BlocksProcessed = processed.BlocksProcessed
	tracking.UniqueBakers = processed.UniqueBakers
	tracking.UnknownBakers = processed.UnknownBakers
	tracking.SkippedDuplicates = processed.SkippedDuplicates

	if err := j.blocks.RecalculateBlockCounts(ctx); err != nil {
		watch.stage("recalculateMs")
		result.Timings = watch.done()
		return result, errors.Categorize(err)
	}
	watch.stage("recalculateMs")

	if err := j.cursors.Set(ctx, models.CursorBlockHeight, strconv.FormatUint(to, 10)); err != nil {
		result.Timings = watch.done()
		return result, errors.NewDatabaseError("advance block cursor", err)
	}

	result.Success = true
	result.Timings = watch.done()
	j.storeResult(ctx, result)

	j.logger.WithFields(map[string]interface{}{
		"from":      from,
		"to":        to,
		"processed": tracking.BlocksProcessed,
		"skipped":   tracking.SkippedDuplicates,
	}).Info("Block poll completed")

	return result, nil
}

// lastProcessedHeight reads the explicit block cursor. A missing or
// unreadable cursor falls back to the highest stored block so deployments
// that predate the cursor resume without refetching.
func (j *BlockPollJob) lastProcessedHeight(ctx context.Context) (*uint64, error) {
	cursor, err := j.cursors.Get(ctx, models.CursorBlockHeight)
	if err != nil {
		return nil, errors.NewDatabaseError("read block cursor", err)
	}
	if cursor != nil {
		if height, parseErr := strconv.ParseUint(cursor.Value, 10, 64); parseErr == nil {
			return &height, nil
		}
		j.logger.WithField("cursor", cursor.Value).Warn("Malformed block cursor, falling back to stored blocks")
	}

	latest, err := j.blocks.GetLatestBlockHeight(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("read latest block height", err)
	}
	return latest, nil
}

// startHeight picks where ingestion resumes. One past the last processed
// height, or a bounded lookback below the head on cold start.
func (j *BlockPollJob) startHeight(previous *uint64, head uint64) uint64 {
	if previous != nil {
		return *previous + 1
	}
	if head > j.lookback {
		return head - j.lookback
	}
	return 0
}

func (j *BlockPollJob) storeResult(ctx context.Context, result *BlockPollResult) {
	if j.cache == nil {
		return
	}
	if err := j.cache.Store(ctx, "blocks", result); err != nil {
		j.logger.WithError(err).Warn("Failed to cache block poll result")
	}
}
