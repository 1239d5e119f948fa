package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
)

// SnapshotRepository handles network-wide snapshot rows in ClickHouse.
// One row is written per successful node poll cycle.
type SnapshotRepository struct {
	db *ClickHouseDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *ClickHouseDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert appends one snapshot row
func (r *SnapshotRepository) Insert(ctx context.Context, snapshot *models.NetworkSnapshot) error {
	query := `
		INSERT INTO network_snapshots (
			timestamp, total_nodes, healthy_nodes, lagging_nodes, issue_nodes,
			avg_peers, avg_latency, max_finalization_lag, consensus_participation, pulse_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.db.Conn().Exec(ctx, query,
		snapshot.Timestamp,
		int32(snapshot.TotalNodes),
		int32(snapshot.HealthyNodes),
		int32(snapshot.LaggingNodes),
		int32(snapshot.IssueNodes),
		snapshot.AvgPeers,
		snapshot.AvgLatency,
		snapshot.MaxFinalizationLag,
		snapshot.ConsensusParticipation,
		snapshot.PulseScore,
	)
	if err != nil {
		return fmt.Errorf("failed to insert network snapshot: %w", err)
	}

	return nil
}

// List retrieves snapshots inside [since, until], oldest first
func (r *SnapshotRepository) List(ctx context.Context, since, until time.Time) ([]*models.NetworkSnapshot, error) {
	query := `
		SELECT timestamp, total_nodes, healthy_nodes, lagging_nodes, issue_nodes,
			   avg_peers, avg_latency, max_finalization_lag, consensus_participation, pulse_score
		FROM network_snapshots
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query network snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.NetworkSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan network snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating network snapshots: %w", err)
	}

	return snapshots, nil
}

// Latest retrieves the most recent snapshot, or nil when none exist yet
func (r *SnapshotRepository) Latest(ctx context.Context) (*models.NetworkSnapshot, error) {
	query := `
		SELECT timestamp, total_nodes, healthy_nodes, lagging_nodes, issue_nodes,
			   avg_peers, avg_latency, max_finalization_lag, consensus_participation, pulse_score
		FROM network_snapshots
		ORDER BY timestamp DESC
		LIMIT 1
	`

	rows, err := r.db.Conn().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	snapshot, err := scanSnapshot(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan latest snapshot: %w", err)
	}
	return snapshot, nil
}

type chRowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row chRowScanner) (*models.NetworkSnapshot, error) {
	var snapshot models.NetworkSnapshot
	var totalNodes, healthyNodes, laggingNodes, issueNodes int32

	err := row.Scan(
		&snapshot.Timestamp,
		&totalNodes,
		&healthyNodes,
		&laggingNodes,
		&issueNodes,
		&snapshot.AvgPeers,
		&snapshot.AvgLatency,
		&snapshot.MaxFinalizationLag,
		&snapshot.ConsensusParticipation,
		&snapshot.PulseScore,
	)
	if err != nil {
		return nil, err
	}

	snapshot.TotalNodes = int(totalNodes)
	snapshot.HealthyNodes = int(healthyNodes)
	snapshot.LaggingNodes = int(laggingNodes)
	snapshot.IssueNodes = int(issueNodes)
	return &snapshot, nil
}
