package tracker

// Pulse score weights. The score starts from a baseline, loses points for
// finalization lag and for latency above a tolerated floor, and earns back
// points for consensus participation.
const (
	pulseBaseline = 70.0

	pulseLagPenaltyPerBlock = 4.0
	pulseLagPenaltyCap      = 40.0

	pulseLatencyFloorMs      = 150.0
	pulseLatencyPenaltyPerMs = 0.05
	pulseLatencyPenaltyCap   = 30.0

	pulseParticipationReward = 30.0
)

// PulseScore condenses network state into a single score in [0, 100].
// Deterministic: no clock, no randomness, no external state.
func PulseScore(finalizationLag uint64, avgLatencyMs float64, consensusNodes, totalNodes int) float64 {
	score := pulseBaseline

	lagPenalty := float64(finalizationLag) * pulseLagPenaltyPerBlock
	if lagPenalty > pulseLagPenaltyCap {
		lagPenalty = pulseLagPenaltyCap
	}
	score -= lagPenalty

	if avgLatencyMs > pulseLatencyFloorMs {
		latencyPenalty := (avgLatencyMs - pulseLatencyFloorMs) * pulseLatencyPenaltyPerMs
		if latencyPenalty > pulseLatencyPenaltyCap {
			latencyPenalty = pulseLatencyPenaltyCap
		}
		score -= latencyPenalty
	}

	if totalNodes > 0 {
		score += pulseParticipationReward * float64(consensusNodes) / float64(totalNodes)
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
