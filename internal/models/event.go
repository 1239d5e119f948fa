package models

import (
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// Event represents one immutable entry in the append-only change log. The
// core never mutates or deletes events; retention is an operator concern.
type Event struct {
	ID        string            `json:"id" db:"id"`
	Timestamp time.Time         `json:"timestamp" db:"timestamp"`
	NodeID    *string           `json:"nodeId,omitempty" db:"node_id"`
	EventType types.EventType   `json:"eventType" db:"event_type"`
	OldValue  string            `json:"oldValue" db:"old_value"`
	NewValue  string            `json:"newValue" db:"new_value"`
	Metadata  map[string]string `json:"metadata,omitempty" db:"metadata"`
}
