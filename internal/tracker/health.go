// Package tracker implements the state-tracking pipeline: block ingestion,
// node snapshot diffing, validator visibility, and the derived network
// metrics. Trackers own disjoint storage and never call each other directly.
package tracker

import (
	"sort"

	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// FinalizationLag returns how many blocks a node's finalized height trails
// the network's highest observed finalized height. Never negative; a node
// ahead of the observed max (ordering skew between sources) counts as zero.
func FinalizationLag(maxHeight, finalizedHeight uint64) uint64 {
	if finalizedHeight >= maxHeight {
		return 0
	}
	return maxHeight - finalizedHeight
}

// ClassifyHealth classifies one node against the network's max finalized
// height. Consensus stopped is an issue regardless of lag; otherwise a lag
// of at most 2 is healthy, at most 5 is lagging, and anything beyond that
// is an issue.
func ClassifyHealth(consensusRunning bool, finalizedHeight, maxHeight uint64) types.HealthStatus {
	if !consensusRunning {
		return types.HealthIssue
	}

	lag := FinalizationLag(maxHeight, finalizedHeight)
	switch {
	case lag <= 2:
		return types.HealthHealthy
	case lag <= 5:
		return types.HealthLagging
	default:
		return types.HealthIssue
	}
}

// Percentile95Lag returns the finalization lag of the 95th-percentile node:
// the distance from the max height to the height at index floor(n*0.05) of
// the heights sorted descending. Zero for fewer than two heights.
func Percentile95Lag(heights []uint64) uint64 {
	if len(heights) < 2 {
		return 0
	}

	sorted := make([]uint64, len(heights))
	copy(sorted, heights)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	idx := int(float64(len(sorted)) * 0.05)
	return FinalizationLag(sorted[0], sorted[idx])
}
