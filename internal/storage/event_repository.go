package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// EventRepository handles the append-only change log in ClickHouse.
// Events are never updated or deleted here; retention is an operator
// concern handled through table TTLs.
type EventRepository struct {
	db *ClickHouseDB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *ClickHouseDB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends a single event
func (r *EventRepository) Insert(ctx context.Context, event *models.Event) error {
	metadataJSON, err := marshalMetadata(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, node_id, event_type, old_value, new_value, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err = r.db.Conn().Exec(ctx, query,
		event.ID,
		event.Timestamp,
		nodeIDOrEmpty(event.NodeID),
		string(event.EventType),
		event.OldValue,
		event.NewValue,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// BatchInsert appends multiple events in one batch. A poll cycle emits all
// of its events through this path so a cycle's change log lands atomically.
func (r *EventRepository) BatchInsert(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO events (id, timestamp, node_id, event_type, old_value, new_value, metadata)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event batch: %w", err)
	}

	for _, event := range events {
		metadataJSON, err := marshalMetadata(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for event %s: %w", event.ID, err)
		}

		err = batch.Append(
			event.ID,
			event.Timestamp,
			nodeIDOrEmpty(event.NodeID),
			string(event.EventType),
			event.OldValue,
			event.NewValue,
			metadataJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s to batch: %w", event.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send event batch: %w", err)
	}

	return nil
}

// EventFilters narrows an event log query
type EventFilters struct {
	NodeID    string
	EventType types.EventType
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// List retrieves events newest first, optionally filtered
func (r *EventRepository) List(ctx context.Context, filters *EventFilters) ([]*models.Event, error) {
	query := `
		SELECT id, timestamp, node_id, event_type, old_value, new_value, metadata
		FROM events
		WHERE 1 = 1
	`
	var args []any

	if filters != nil {
		if filters.NodeID != "" {
			query += ` AND node_id = ?`
			args = append(args, filters.NodeID)
		}
		if filters.EventType != "" {
			query += ` AND event_type = ?`
			args = append(args, string(filters.EventType))
		}
		if filters.Since != nil {
			query += ` AND timestamp >= ?`
			args = append(args, *filters.Since)
		}
		if filters.Until != nil {
			query += ` AND timestamp <= ?`
			args = append(args, *filters.Until)
		}
	}

	query += ` ORDER BY timestamp DESC`

	limit := 100
	if filters != nil && filters.Limit > 0 {
		limit = filters.Limit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var event models.Event
		var nodeID string
		var eventType string
		var metadataJSON string

		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&nodeID,
			&eventType,
			&event.OldValue,
			&event.NewValue,
			&metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if nodeID != "" {
			event.NodeID = &nodeID
		}
		event.EventType = types.EventType(eventType)

		if metadataJSON != "" && metadataJSON != "{}" {
			if err := json.Unmarshal([]byte(metadataJSON), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func marshalMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nodeIDOrEmpty(nodeID *string) string {
	if nodeID == nil {
		return ""
	}
	return *nodeID
}
