package models

import (
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// HealthSample represents one point-in-time health observation for a node.
// A best-effort sample is appended for every node in every processed snapshot.
type HealthSample struct {
	NodeID               string             `json:"nodeId" db:"node_id"`
	Timestamp            time.Time          `json:"timestamp" db:"timestamp"`
	Health               types.HealthStatus `json:"health" db:"health"`
	PeersCount           int                `json:"peersCount" db:"peers_count"`
	AveragePing          *float64           `json:"averagePing,omitempty" db:"average_ping"`
	FinalizedBlockHeight uint64             `json:"finalizedBlockHeight" db:"finalized_block_height"`
	HeightDelta          uint64             `json:"heightDelta" db:"height_delta"`
	BandwidthIn          int64              `json:"bandwidthIn" db:"bandwidth_in"`
	BandwidthOut         int64              `json:"bandwidthOut" db:"bandwidth_out"`
}
