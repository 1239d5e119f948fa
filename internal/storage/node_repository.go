package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/jackc/pgx/v5"
)

// NodeRepository handles reporting-node persistence
type NodeRepository struct {
	db *PostgresDB
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(db *PostgresDB) *NodeRepository {
	return &NodeRepository{db: db}
}

const nodeColumns = `
	node_id, node_name, client, peer_type, uptime_ms, peers_count,
	average_ping, bandwidth_in, bandwidth_out, consensus_running,
	baking_committee_member, consensus_baker_id, best_block_height,
	finalized_block_height, health, is_active, first_seen, last_seen
`

// Upsert creates or refreshes a node row from a poll snapshot. Existing rows
// keep their first_seen and are marked active again.
func (r *NodeRepository) Upsert(ctx context.Context, node *models.Node) error {
	query := `
		INSERT INTO nodes (` + nodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (node_id)
		DO UPDATE SET
			node_name = EXCLUDED.node_name,
			client = EXCLUDED.client,
			peer_type = EXCLUDED.peer_type,
			uptime_ms = EXCLUDED.uptime_ms,
			peers_count = EXCLUDED.peers_count,
			average_ping = EXCLUDED.average_ping,
			bandwidth_in = EXCLUDED.bandwidth_in,
			bandwidth_out = EXCLUDED.bandwidth_out,
			consensus_running = EXCLUDED.consensus_running,
			baking_committee_member = EXCLUDED.baking_committee_member,
			consensus_baker_id = EXCLUDED.consensus_baker_id,
			best_block_height = EXCLUDED.best_block_height,
			finalized_block_height = EXCLUDED.finalized_block_height,
			health = EXCLUDED.health,
			is_active = TRUE,
			last_seen = EXCLUDED.last_seen
	`

	_, err := r.db.Pool().Exec(ctx, query,
		node.NodeID,
		node.NodeName,
		node.Client,
		node.PeerType,
		node.UptimeMs,
		node.PeersCount,
		node.AveragePing,
		node.BandwidthIn,
		node.BandwidthOut,
		node.ConsensusRunning,
		node.BakingCommitteeMember,
		node.ConsensusBakerID,
		node.BestBlockHeight,
		node.FinalizedBlockHeight,
		node.Health,
		node.IsActive,
		node.FirstSeen,
		node.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert node: %w", err)
	}

	return nil
}

// GetByID retrieves one node by its stable identifier
func (r *NodeRepository) GetByID(ctx context.Context, nodeID string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE node_id = $1`

	node, err := scanNode(r.db.Pool().QueryRow(ctx, query, nodeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return node, nil
}

// GetAll retrieves every known node, active or not
func (r *NodeRepository) GetAll(ctx context.Context) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes ORDER BY node_id`
	return r.queryNodes(ctx, query)
}

// GetActive retrieves every node currently marked active
func (r *NodeRepository) GetActive(ctx context.Context) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE is_active ORDER BY node_id`
	return r.queryNodes(ctx, query)
}

// MarkInactive flags the given nodes as absent. Rows are never deleted;
// history survives a node dropping off the dashboard.
func (r *NodeRepository) MarkInactive(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	query := `UPDATE nodes SET is_active = FALSE WHERE node_id = ANY($1)`
	if _, err := r.db.Pool().Exec(ctx, query, nodeIDs); err != nil {
		return fmt.Errorf("failed to mark nodes inactive: %w", err)
	}
	return nil
}

// GetNewNodesInRange lists nodes first seen inside [since, until]
func (r *NodeRepository) GetNewNodesInRange(ctx context.Context, since, until time.Time) ([]*models.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE first_seen >= $1 AND first_seen <= $2
		ORDER BY first_seen DESC
	`
	rows, err := r.db.Pool().Query(ctx, query, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list new nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

func (r *NodeRepository) queryNodes(ctx context.Context, query string, args ...interface{}) ([]*models.Node, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var node models.Node
	err := row.Scan(
		&node.NodeID,
		&node.NodeName,
		&node.Client,
		&node.PeerType,
		&node.UptimeMs,
		&node.PeersCount,
		&node.AveragePing,
		&node.BandwidthIn,
		&node.BandwidthOut,
		&node.ConsensusRunning,
		&node.BakingCommitteeMember,
		&node.ConsensusBakerID,
		&node.BestBlockHeight,
		&node.FinalizedBlockHeight,
		&node.Health,
		&node.IsActive,
		&node.FirstSeen,
		&node.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func collectNodes(rows pgx.Rows) ([]*models.Node, error) {
	var nodes []*models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}
