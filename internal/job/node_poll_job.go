package job

import (
	"context"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/errors"
	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/tracker"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// DashboardSource fetches the current node summary
type DashboardSource interface {
	GetNodesSummary(ctx context.Context) ([]types.NodeSnapshot, error)
}

// NodeProcessor is the node tracker surface the job drives
type NodeProcessor interface {
	ProcessNodes(ctx context.Context, nodes []types.NodeSnapshot, maxHeight uint64) (*tracker.NodeProcessResult, error)
}

// VisibilityUpdater is the validator tracker surface the node poll uses for
// its cheap linkage pass.
type VisibilityUpdater interface {
	UpdateVisibilityFromNodes(ctx context.Context, peers []types.ReportingPeer) (*tracker.VisibilityResult, error)
}

// PeerSink records peer observations derived from the dashboard feed
type PeerSink interface {
	UpsertObservation(ctx context.Context, peer *models.Peer) error
}

// NodePollJob diffs the current dashboard snapshot against tracked state and
// refreshes validator visibility from the same data.
type NodePollJob struct {
	dashboard  DashboardSource
	nodes      NodeProcessor
	visibility VisibilityUpdater
	peers      PeerSink
	cache      ResultCache
	budget     time.Duration
	logger     *logging.Logger
}

// NewNodePollJob creates a new node poll job
func NewNodePollJob(dashboard DashboardSource, nodes NodeProcessor, visibility VisibilityUpdater, peers PeerSink, cache ResultCache, budget time.Duration, logger *logging.Logger) *NodePollJob {
	return &NodePollJob{
		dashboard:  dashboard,
		nodes:      nodes,
		visibility: visibility,
		peers:      peers,
		cache:      cache,
		budget:     budget,
		logger:     logger.WithField("job", "node_poll"),
	}
}

// NodePollResult is the job's structured result
type NodePollResult struct {
	Success             bool                       `json:"success"`
	Mode                string                     `json:"mode"`
	Timestamp           time.Time                  `json:"timestamp"`
	NodesPolled         int                        `json:"nodesPolled"`
	MaxHeight           uint64                     `json:"maxHeight"`
	NetworkMetrics      *models.NetworkSnapshot    `json:"networkMetrics,omitempty"`
	Changes             *tracker.NodeProcessResult `json:"changes,omitempty"`
	ValidatorVisibility *tracker.VisibilityResult  `json:"validatorVisibility,omitempty"`
	Timings             Timings                    `json:"timings"`
}

// Run executes one node poll cycle: fetch the dashboard snapshot, diff it
// against persisted state, record peer observations, and run the linkage
// pass. An empty or failed fetch aborts before anything is written.
func (j *NodePollJob) Run(ctx context.Context) (*NodePollResult, error) {
	if j.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.budget)
		defer cancel()
	}

	watch := newStopwatch()
	result := &NodePollResult{Mode: "full", Timestamp: time.Now().UTC()}

	snapshot, err := j.dashboard.GetNodesSummary(ctx)
	watch.stage("fetchMs")
	if err != nil {
		result.Timings = watch.done()
		return result, err
	}
	result.NodesPolled = len(snapshot)
	result.MaxHeight = maxFinalizedHeight(snapshot)

	changes, err := j.nodes.ProcessNodes(ctx, snapshot, result.MaxHeight)
	watch.stage("processMs")
	if err != nil {
		result.Timings = watch.done()
		return result, errors.Categorize(err)
	}
	result.Changes = changes
	result.NetworkMetrics = changes.Snapshot

	if err := j.recordPeers(ctx, snapshot); err != nil {
		result.Timings = watch.done()
		return result, errors.NewDatabaseError("record peer observations", err)
	}
	watch.stage("peersMs")

	visibility, err := j.visibility.UpdateVisibilityFromNodes(ctx, reportingPeers(snapshot))
	watch.stage("visibilityMs")
	if err != nil {
		result.Timings = watch.done()
		return result, errors.Categorize(err)
	}
	result.ValidatorVisibility = visibility

	result.Success = true
	result.Timings = watch.done()

	if j.cache != nil {
		if err := j.cache.Store(ctx, "nodes", result); err != nil {
			j.logger.WithError(err).Warn("Failed to cache node poll result")
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"nodes":     result.NodesPolled,
		"maxHeight": result.MaxHeight,
		"new":       changes.NewNodes,
		"linked":    visibility.Updated,
	}).Info("Node poll completed")

	return result, nil
}

func (j *NodePollJob) recordPeers(ctx context.Context, snapshot []types.NodeSnapshot) error {
	if j.peers == nil {
		return nil
	}
	now := time.Now().UTC()
	for i := range snapshot {
		snap := &snapshot[i]
		peer := &models.Peer{
			PeerID:      snap.NodeID,
			Source:      types.SourceReporting,
			SeenByCount: len(snap.PeersList),
			FirstSeen:   now,
			LastSeen:    now,
		}
		if err := j.peers.UpsertObservation(ctx, peer); err != nil {
			return err
		}
	}
	return nil
}

// maxFinalizedHeight returns the highest finalized height any node reports.
// Health classification for the whole cycle is relative to this value.
func maxFinalizedHeight(snapshot []types.NodeSnapshot) uint64 {
	var max uint64
	for i := range snapshot {
		if snapshot[i].FinalizedBlockHeight > max {
			max = snapshot[i].FinalizedBlockHeight
		}
	}
	return max
}

func reportingPeers(snapshot []types.NodeSnapshot) []types.ReportingPeer {
	peers := make([]types.ReportingPeer, 0, len(snapshot))
	for i := range snapshot {
		snap := &snapshot[i]
		peers = append(peers, types.ReportingPeer{
			PeerID:           snap.NodeID,
			ConsensusBakerID: snap.ConsensusBakerID,
			NodeName:         snap.NodeName,
		})
	}
	return peers
}
