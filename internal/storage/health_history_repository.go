package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// HealthHistoryRepository handles per-node health samples in ClickHouse
type HealthHistoryRepository struct {
	db *ClickHouseDB
}

// NewHealthHistoryRepository creates a new health history repository
func NewHealthHistoryRepository(db *ClickHouseDB) *HealthHistoryRepository {
	return &HealthHistoryRepository{db: db}
}

// BatchInsert appends one sample per node for a poll cycle
func (r *HealthHistoryRepository) BatchInsert(ctx context.Context, samples []*models.HealthSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO node_health_history (
			node_id, timestamp, health, peers_count, average_ping,
			finalized_block_height, height_delta, bandwidth_in, bandwidth_out
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare health history batch: %w", err)
	}

	for _, sample := range samples {
		ping := float64(0)
		if sample.AveragePing != nil {
			ping = *sample.AveragePing
		}

		err = batch.Append(
			sample.NodeID,
			sample.Timestamp,
			string(sample.Health),
			int32(sample.PeersCount),
			ping,
			sample.FinalizedBlockHeight,
			sample.HeightDelta,
			sample.BandwidthIn,
			sample.BandwidthOut,
		)
		if err != nil {
			return fmt.Errorf("failed to append health sample for node %s: %w", sample.NodeID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send health history batch: %w", err)
	}

	return nil
}

// ListByNode retrieves samples for one node inside [since, until],
// oldest first so callers can downsample in order.
func (r *HealthHistoryRepository) ListByNode(ctx context.Context, nodeID string, since, until time.Time) ([]*models.HealthSample, error) {
	query := `
		SELECT node_id, timestamp, health, peers_count, average_ping,
			   finalized_block_height, height_delta, bandwidth_in, bandwidth_out
		FROM node_health_history
		WHERE node_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, nodeID, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query health history: %w", err)
	}
	defer rows.Close()

	var samples []*models.HealthSample
	for rows.Next() {
		var sample models.HealthSample
		var health string
		var peersCount int32
		var ping float64

		err := rows.Scan(
			&sample.NodeID,
			&sample.Timestamp,
			&health,
			&peersCount,
			&ping,
			&sample.FinalizedBlockHeight,
			&sample.HeightDelta,
			&sample.BandwidthIn,
			&sample.BandwidthOut,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan health sample: %w", err)
		}

		sample.Health = types.HealthStatus(health)
		sample.PeersCount = int(peersCount)
		if ping > 0 {
			p := ping
			sample.AveragePing = &p
		}

		samples = append(samples, &sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating health samples: %w", err)
	}

	return samples, nil
}
