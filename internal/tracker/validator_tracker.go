package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// ValidatorStore is the validator persistence surface the tracker needs
type ValidatorStore interface {
	UpsertFromRegistry(ctx context.Context, v *types.RegistryValidator, now time.Time) (created bool, err error)
	GetByBakerID(ctx context.Context, bakerID uint64) (*models.Validator, error)
	GetAll(ctx context.Context) ([]*models.Validator, error)
	Link(ctx context.Context, bakerID uint64, peerID, nodeName string) (bool, error)
	Unlink(ctx context.Context, bakerID uint64) (bool, error)
}

// ValidatorTracker maintains the validator registry and its linkage to
// reporting peers. It reads node data for linkage but never writes it.
type ValidatorTracker struct {
	validators ValidatorStore
	logger     *logging.Logger
}

// NewValidatorTracker creates a new validator tracker
func NewValidatorTracker(validators ValidatorStore, logger *logging.Logger) *ValidatorTracker {
	return &ValidatorTracker{
		validators: validators,
		logger:     logger.WithField("component", "validator_tracker"),
	}
}

// ValidatorProcessResult summarizes one full registry refresh
type ValidatorProcessResult struct {
	TotalValidators    int                `json:"totalValidators"`
	VisibleValidators  int                `json:"visibleValidators"`
	PhantomValidators  int                `json:"phantomValidators"`
	NewValidators      int                `json:"newValidators"`
	StakeVisibilityPct float64            `json:"stakeVisibilityPct"`
	QuorumHealth       types.QuorumHealth `json:"quorumHealth"`
	FetchErrors        int                `json:"fetchErrors,omitempty"`
}

// VisibilityResult summarizes one linkage pass over reporting peers
type VisibilityResult struct {
	Updated        int `json:"updated"`
	AlreadyVisible int `json:"alreadyVisible"`
	NoValidator    int `json:"noValidator"`
}

// StakeVisibilityPct returns the share of lottery power backed by reporting
// validators, in percent. Zero when no lottery power is known at all.
func StakeVisibilityPct(visiblePower, phantomPower float64) float64 {
	total := visiblePower + phantomPower
	if total == 0 {
		return 0
	}
	return 100 * visiblePower / total
}

// ClassifyQuorum maps stake visibility to a qualitative quorum health.
// Breakpoints at 70 and 50 percent, inclusive.
func ClassifyQuorum(stakeVisibilityPct float64) types.QuorumHealth {
	switch {
	case stakeVisibilityPct >= 70:
		return types.QuorumHealthy
	case stakeVisibilityPct >= 50:
		return types.QuorumDegraded
	default:
		return types.QuorumCritical
	}
}

// ProcessValidators does a full refresh: upserts every registry entry,
// reconciles linkage against the current reporting peers, degrades
// reporting validators whose peer vanished, and recomputes visibility.
// fetchErrors carries the count of registry entries the fetch layer had to
// skip; the refresh proceeds with what it has.
func (t *ValidatorTracker) ProcessValidators(ctx context.Context, registry []types.RegistryValidator, peers []types.ReportingPeer, fetchErrors int) (*ValidatorProcessResult, error) {
	now := time.Now().UTC()
	result := &ValidatorProcessResult{FetchErrors: fetchErrors}

	for i := range registry {
		created, err := t.validators.UpsertFromRegistry(ctx, &registry[i], now)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh baker %d: %w", registry[i].BakerID, err)
		}
		if created {
			result.NewValidators++
		}
	}

	if _, err := t.UpdateVisibilityFromNodes(ctx, peers); err != nil {
		return nil, err
	}

	if err := t.degradeUnbackedValidators(ctx, peers); err != nil {
		return nil, err
	}

	validators, err := t.validators.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load validators: %w", err)
	}

	var visiblePower, phantomPower float64
	for _, v := range validators {
		result.TotalValidators++
		if v.IsVisible() {
			result.VisibleValidators++
			visiblePower += v.LotteryPower
		} else {
			result.PhantomValidators++
			phantomPower += v.LotteryPower
		}
	}

	result.StakeVisibilityPct = StakeVisibilityPct(visiblePower, phantomPower)
	result.QuorumHealth = ClassifyQuorum(result.StakeVisibilityPct)

	t.logger.WithFields(map[string]interface{}{
		"total":         result.TotalValidators,
		"visible":       result.VisibleValidators,
		"phantom":       result.PhantomValidators,
		"visibilityPct": result.StakeVisibilityPct,
		"quorum":        result.QuorumHealth,
	}).Debug("Refreshed validator registry")

	return result, nil
}

// UpdateVisibilityFromNodes links validators to reporting peers by baker ID.
// Uses only dashboard data; cheap enough to run on every node poll.
func (t *ValidatorTracker) UpdateVisibilityFromNodes(ctx context.Context, peers []types.ReportingPeer) (*VisibilityResult, error) {
	result := &VisibilityResult{}

	for i := range peers {
		peer := &peers[i]
		if peer.ConsensusBakerID == nil {
			continue
		}

		validator, err := t.validators.GetByBakerID(ctx, *peer.ConsensusBakerID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up baker %d: %w", *peer.ConsensusBakerID, err)
		}
		if validator == nil {
			result.NoValidator++
			continue
		}
		if validator.IsVisible() {
			result.AlreadyVisible++
			continue
		}

		linked, err := t.validators.Link(ctx, validator.BakerID, peer.PeerID, peer.NodeName)
		if err != nil {
			return nil, fmt.Errorf("failed to link baker %d: %w", validator.BakerID, err)
		}
		if linked {
			result.Updated++
		} else {
			result.AlreadyVisible++
		}
	}

	return result, nil
}

// degradeUnbackedValidators flips reporting validators whose linked peer is
// no longer among the current reporting peers back to phantoms. Rows and
// their counters are preserved; only the source/link pair changes.
func (t *ValidatorTracker) degradeUnbackedValidators(ctx context.Context, peers []types.ReportingPeer) error {
	present := make(map[string]bool, len(peers))
	for i := range peers {
		present[peers[i].PeerID] = true
	}

	validators, err := t.validators.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load validators: %w", err)
	}

	for _, v := range validators {
		if !v.IsVisible() || present[*v.LinkedPeerID] {
			continue
		}
		if _, err := t.validators.Unlink(ctx, v.BakerID); err != nil {
			return fmt.Errorf("failed to unlink baker %d: %w", v.BakerID, err)
		}
	}

	return nil
}
