package models

import (
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// Node represents a reporting peer tracked across poll cycles. Rows are
// created on first sighting and marked inactive, never deleted, when a node
// drops out of the dashboard feed.
type Node struct {
	NodeID                string             `json:"nodeId" db:"node_id"`
	NodeName              string             `json:"nodeName" db:"node_name"`
	Client                string             `json:"client" db:"client"`
	PeerType              string             `json:"peerType" db:"peer_type"`
	UptimeMs              int64              `json:"uptime" db:"uptime_ms"`
	PeersCount            int                `json:"peersCount" db:"peers_count"`
	AveragePing           *float64           `json:"averagePing,omitempty" db:"average_ping"`
	BandwidthIn           int64              `json:"bandwidthIn" db:"bandwidth_in"`
	BandwidthOut          int64              `json:"bandwidthOut" db:"bandwidth_out"`
	ConsensusRunning      bool               `json:"consensusRunning" db:"consensus_running"`
	BakingCommitteeMember string             `json:"bakingCommitteeMember,omitempty" db:"baking_committee_member"`
	ConsensusBakerID      *uint64            `json:"consensusBakerId,omitempty" db:"consensus_baker_id"`
	BestBlockHeight       uint64             `json:"bestBlockHeight" db:"best_block_height"`
	FinalizedBlockHeight  uint64             `json:"finalizedBlockHeight" db:"finalized_block_height"`
	Health                types.HealthStatus `json:"health" db:"health"`
	IsActive              bool               `json:"isActive" db:"is_active"`
	FirstSeen             time.Time          `json:"firstSeen" db:"first_seen"`
	LastSeen              time.Time          `json:"lastSeen" db:"last_seen"`
}
