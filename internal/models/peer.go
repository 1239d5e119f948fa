package models

import (
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// Peer represents a lower-level network identity. A peer may or may not map
// 1:1 to a reporting Node; provenance is recorded in Source, with the most
// authoritative observation mechanism winning conflicting writes.
type Peer struct {
	PeerID         string           `json:"peerId" db:"peer_id"`
	Source         types.PeerSource `json:"source" db:"source"`
	CountryCode    *string          `json:"countryCode,omitempty" db:"country_code"`
	City           *string          `json:"city,omitempty" db:"city"`
	Latitude       *float64         `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64         `json:"longitude,omitempty" db:"longitude"`
	IsBootstrapper bool             `json:"isBootstrapper" db:"is_bootstrapper"`
	SeenByCount    int              `json:"seenByCount" db:"seen_by_count"`
	FirstSeen      time.Time        `json:"firstSeen" db:"first_seen"`
	LastSeen       time.Time        `json:"lastSeen" db:"last_seen"`
}
