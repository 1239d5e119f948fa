package models

import "time"

// NetworkSnapshot summarizes one poll cycle across the whole network.
// Rows form an append-only time series consumed by history queries.
type NetworkSnapshot struct {
	Timestamp              time.Time `json:"timestamp" db:"timestamp"`
	TotalNodes             int       `json:"totalNodes" db:"total_nodes"`
	HealthyNodes           int       `json:"healthyNodes" db:"healthy_nodes"`
	LaggingNodes           int       `json:"laggingNodes" db:"lagging_nodes"`
	IssueNodes             int       `json:"issueNodes" db:"issue_nodes"`
	AvgPeers               float64   `json:"avgPeers" db:"avg_peers"`
	AvgLatency             float64   `json:"avgLatency" db:"avg_latency"`
	MaxFinalizationLag     uint64    `json:"maxFinalizationLag" db:"max_finalization_lag"`
	ConsensusParticipation float64   `json:"consensusParticipation" db:"consensus_participation"`
	PulseScore             float64   `json:"pulseScore" db:"pulse_score"`
}
