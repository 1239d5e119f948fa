package storage

import (
	"context"
	"fmt"

	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
)

// PeerRepository handles low-level peer identity persistence
type PeerRepository struct {
	db *PostgresDB
}

// NewPeerRepository creates a new peer repository
func NewPeerRepository(db *PostgresDB) *PeerRepository {
	return &PeerRepository{db: db}
}

// UpsertObservation records one sighting of a peer. When the same peer is
// observed through multiple mechanisms, the most authoritative source wins:
// reporting > grpc > inferred. Less authoritative observations still refresh
// last_seen and the seen-by count.
func (r *PeerRepository) UpsertObservation(ctx context.Context, peer *models.Peer) error {
	query := `
		INSERT INTO peers (
			peer_id, source, country_code, city, latitude, longitude,
			is_bootstrapper, seen_by_count, first_seen, last_seen
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (peer_id)
		DO UPDATE SET
			source = CASE
				WHEN source_rank(EXCLUDED.source) >= source_rank(peers.source)
				THEN EXCLUDED.source
				ELSE peers.source
			END,
			country_code = COALESCE(EXCLUDED.country_code, peers.country_code),
			city = COALESCE(EXCLUDED.city, peers.city),
			latitude = COALESCE(EXCLUDED.latitude, peers.latitude),
			longitude = COALESCE(EXCLUDED.longitude, peers.longitude),
			is_bootstrapper = EXCLUDED.is_bootstrapper OR peers.is_bootstrapper,
			seen_by_count = GREATEST(EXCLUDED.seen_by_count, peers.seen_by_count),
			last_seen = EXCLUDED.last_seen
	`

	_, err := r.db.Pool().Exec(ctx, query,
		peer.PeerID,
		peer.Source,
		peer.CountryCode,
		peer.City,
		peer.Latitude,
		peer.Longitude,
		peer.IsBootstrapper,
		peer.SeenByCount,
		peer.FirstSeen,
		peer.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert peer: %w", err)
	}

	return nil
}

// List retrieves all known peers ordered by most recently seen
func (r *PeerRepository) List(ctx context.Context) ([]*models.Peer, error) {
	query := `
		SELECT peer_id, source, country_code, city, latitude, longitude,
			   is_bootstrapper, seen_by_count, first_seen, last_seen
		FROM peers
		ORDER BY last_seen DESC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}
	defer rows.Close()

	var peers []*models.Peer
	for rows.Next() {
		var peer models.Peer
		err := rows.Scan(
			&peer.PeerID,
			&peer.Source,
			&peer.CountryCode,
			&peer.City,
			&peer.Latitude,
			&peer.Longitude,
			&peer.IsBootstrapper,
			&peer.SeenByCount,
			&peer.FirstSeen,
			&peer.LastSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		peers = append(peers, &peer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating peers: %w", err)
	}

	return peers, nil
}
