package job

import (
	"context"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/errors"
	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/tracker"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// RegistrySource fetches the on-chain validator registry
type RegistrySource interface {
	GetValidators(ctx context.Context) ([]types.RegistryValidator, int, error)
}

// ValidatorProcessor is the validator tracker surface the job drives
type ValidatorProcessor interface {
	ProcessValidators(ctx context.Context, registry []types.RegistryValidator, peers []types.ReportingPeer, fetchErrors int) (*tracker.ValidatorProcessResult, error)
}

// ValidatorPollJob refreshes the full validator registry from chain state
// and reconciles it against the current reporting nodes.
type ValidatorPollJob struct {
	registry   RegistrySource
	dashboard  DashboardSource
	validators ValidatorProcessor
	cache      ResultCache
	budget     time.Duration
	logger     *logging.Logger
}

// NewValidatorPollJob creates a new validator poll job
func NewValidatorPollJob(registry RegistrySource, dashboard DashboardSource, validators ValidatorProcessor, cache ResultCache, budget time.Duration, logger *logging.Logger) *ValidatorPollJob {
	return &ValidatorPollJob{
		registry:   registry,
		dashboard:  dashboard,
		validators: validators,
		cache:      cache,
		budget:     budget,
		logger:     logger.WithField("job", "validator_poll"),
	}
}

// ValidatorPollResult is the job's structured result
type ValidatorPollResult struct {
	Success           bool                            `json:"success"`
	Mode              string                          `json:"mode"`
	Timestamp         time.Time                       `json:"timestamp"`
	NodesForLinking   int                             `json:"nodesForLinking"`
	ValidatorTracking *tracker.ValidatorProcessResult `json:"validatorTracking,omitempty"`
	Timings           Timings                         `json:"timings"`
}

// Run executes one validator poll cycle. The dashboard snapshot is fetched
// only to drive linkage; registry entries the chain source had to skip are
// carried through as fetchErrors rather than failing the refresh.
func (j *ValidatorPollJob) Run(ctx context.Context) (*ValidatorPollResult, error) {
	if j.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.budget)
		defer cancel()
	}

	watch := newStopwatch()
	result := &ValidatorPollResult{Mode: "validators-only", Timestamp: time.Now().UTC()}

	snapshot, err := j.dashboard.GetNodesSummary(ctx)
	if err != nil {
		watch.stage("fetchMs")
		result.Timings = watch.done()
		return result, err
	}
	result.NodesForLinking = len(snapshot)

	registry, skipped, err := j.registry.GetValidators(ctx)
	watch.stage("fetchMs")
	if err != nil {
		result.Timings = watch.done()
		return result, err
	}
	if skipped > 0 {
		j.logger.WithError(errors.NewPartialFetchError("validator registry", skipped, nil)).
			Warn("Proceeding with partial registry fetch")
	}

	tracking, err := j.validators.ProcessValidators(ctx, registry, reportingPeers(snapshot), skipped)
	watch.stage("processMs")
	if err != nil {
		result.Timings = watch.done()
		return result, errors.Categorize(err)
	}
	result.ValidatorTracking = tracking

	result.Success = true
	result.Timings = watch.done()

	if j.cache != nil {
		if err := j.cache.Store(ctx, "validators", result); err != nil {
			j.logger.WithError(err).Warn("Failed to cache validator poll result")
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"validators": tracking.TotalValidators,
		"visible":    tracking.VisibleValidators,
		"quorum":     tracking.QuorumHealth,
	}).Info("Validator poll completed")

	return result, nil
}
