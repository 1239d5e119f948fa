package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/h4x0r/concordium-node-map-sub002/internal/storage"
	"github.com/h4x0r/concordium-node-map-sub002/internal/tracker"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

const defaultReadWindow = 24 * time.Hour

// parseTimeRange reads since/until query params as RFC3339. Missing values
// default to the last day ending now.
func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	until := time.Now().UTC()
	if raw := r.URL.Query().Get("until"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid until: %w", err)
		}
		until = parsed
	}

	since := until.Add(-defaultReadWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid since: %w", err)
		}
		since = parsed
	}

	if since.After(until) {
		return time.Time{}, time.Time{}, fmt.Errorf("since is after until")
	}

	return since, until, nil
}

// handleListPeers returns every known peer, most authoritative provenance
// first.
func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.peers.List(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list peers")
		respondCategorized(w, err)
		return
	}

	sort.Slice(peers, func(i, j int) bool {
		ri, rj := types.SourceRank(peers[i].Source), types.SourceRank(peers[j].Source)
		if ri != rj {
			return ri > rj
		}
		return peers[i].PeerID < peers[j].PeerID
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"peers": peers,
		"count": len(peers),
	})
}

// handleListValidators returns the validator registry with a stake
// visibility summary computed from the same listing.
func (s *Server) handleListValidators(w http.ResponseWriter, r *http.Request) {
	validators, err := s.validators.GetAll(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list validators")
		respondCategorized(w, err)
		return
	}

	var visible, phantom int
	var visiblePower, phantomPower float64
	for _, v := range validators {
		if v.IsVisible() {
			visible++
			visiblePower += v.LotteryPower
		} else {
			phantom++
			phantomPower += v.LotteryPower
		}
	}

	pct := tracker.StakeVisibilityPct(visiblePower, phantomPower)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"validators": validators,
		"summary": map[string]interface{}{
			"total":              len(validators),
			"visible":            visible,
			"phantom":            phantom,
			"stakeVisibilityPct": pct,
			"quorumHealth":       tracker.ClassifyQuorum(pct),
		},
	})
}

// handleListEvents returns change events, newest first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseTimeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(), nil)
		return
	}

	filters := &storage.EventFilters{
		NodeID: r.URL.Query().Get("nodeId"),
		Since:  &since,
		Until:  &until,
	}

	if raw := r.URL.Query().Get("type"); raw != "" {
		eventType := types.EventType(raw)
		if !types.IsValidEventType(eventType) {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER",
				fmt.Sprintf("unknown event type %q", raw), nil)
			return
		}
		filters.EventType = eventType
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a positive integer", nil)
			return
		}
		filters.Limit = limit
	}

	events, err := s.events.List(r.Context(), filters)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list events")
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleNewNodes returns nodes first seen inside the requested window.
func (s *Server) handleNewNodes(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseTimeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(), nil)
		return
	}

	nodes, err := s.nodes.GetNewNodesInRange(r.Context(), since, until)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list new nodes")
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": nodes,
		"count": len(nodes),
		"since": since,
		"until": until,
	})
}

// handleHealthHistory returns a node's health samples, optionally
// downsampled to one sample per intervalMs bucket.
func (s *Server) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if nodeID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "nodeId is required", nil)
		return
	}

	since, until, err := parseTimeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(), nil)
		return
	}

	var intervalMs int64
	if raw := r.URL.Query().Get("intervalMs"); raw != "" {
		intervalMs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || intervalMs < 0 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "intervalMs must be a non-negative integer", nil)
			return
		}
	}

	samples, err := s.nodes.GetNodeHealthHistory(r.Context(), nodeID, since, until, intervalMs)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read health history")
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"nodeId":  nodeID,
		"samples": samples,
		"count":   len(samples),
	})
}

// handleNetworkSnapshots returns the aggregate snapshot series.
func (s *Server) handleNetworkSnapshots(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseTimeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(), nil)
		return
	}

	snapshots, err := s.snapshots.List(r.Context(), since, until)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list network snapshots")
		respondCategorized(w, err)
		return
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a positive integer", nil)
			return
		}
		// Rows come back oldest first; a limit keeps the most recent tail.
		if len(snapshots) > limit {
			snapshots = snapshots[len(snapshots)-limit:]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// handleNetworkSummary returns the most recent aggregate snapshot together
// with the cached results of the last completed poll of each kind, or an
// explicitly empty summary before the first poll has landed.
func (s *Server) handleNetworkSummary(w http.ResponseWriter, r *http.Request) {
	latest, err := s.snapshots.Latest(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to read latest snapshot")
		respondCategorized(w, err)
		return
	}

	if latest == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"available": false,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"available": true,
		"snapshot":  latest,
		"lastPolls": s.loadCachedPolls(r.Context()),
	})
}

// loadCachedPolls collects whatever last-poll results are still inside the
// cache TTL. Cache failures degrade to an empty map, never a 500.
func (s *Server) loadCachedPolls(ctx context.Context) map[string]json.RawMessage {
	polls := make(map[string]json.RawMessage)
	if s.pollCache == nil {
		return polls
	}

	for _, kind := range []string{"blocks", "nodes", "validators"} {
		var raw json.RawMessage
		found, err := s.pollCache.Load(ctx, kind, &raw)
		if err != nil {
			s.logger.WithError(err).WithField("kind", kind).Warn("Failed to load cached poll result")
			continue
		}
		if found {
			polls[kind] = raw
		}
	}

	return polls
}
