package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// NodeStore is the node persistence surface the tracker needs
type NodeStore interface {
	Upsert(ctx context.Context, node *models.Node) error
	GetAll(ctx context.Context) ([]*models.Node, error)
	GetActive(ctx context.Context) ([]*models.Node, error)
	MarkInactive(ctx context.Context, nodeIDs []string) error
	GetNewNodesInRange(ctx context.Context, since, until time.Time) ([]*models.Node, error)
}

// CursorStore persists the last fully-processed state per poll type
type CursorStore interface {
	Get(ctx context.Context, name string) (*models.PollCursor, error)
	Set(ctx context.Context, name, value string) error
}

// EventSink appends change events
type EventSink interface {
	BatchInsert(ctx context.Context, events []*models.Event) error
}

// HealthHistoryStore appends and reads per-node health samples
type HealthHistoryStore interface {
	BatchInsert(ctx context.Context, samples []*models.HealthSample) error
	ListByNode(ctx context.Context, nodeID string, since, until time.Time) ([]*models.HealthSample, error)
}

// SnapshotSink appends network-wide snapshot rows
type SnapshotSink interface {
	Insert(ctx context.Context, snapshot *models.NetworkSnapshot) error
}

// NodeTracker diffs each dashboard snapshot against persisted node state,
// emits change events, and records health history and network snapshots.
type NodeTracker struct {
	nodes     NodeStore
	cursors   CursorStore
	events    EventSink
	history   HealthHistoryStore
	snapshots SnapshotSink
	logger    *logging.Logger
}

// NewNodeTracker creates a new node tracker
func NewNodeTracker(nodes NodeStore, cursors CursorStore, events EventSink, history HealthHistoryStore, snapshots SnapshotSink, logger *logging.Logger) *NodeTracker {
	return &NodeTracker{
		nodes:     nodes,
		cursors:   cursors,
		events:    events,
		history:   history,
		snapshots: snapshots,
		logger:    logger.WithField("component", "node_tracker"),
	}
}

// NodeProcessResult summarizes one node diff pass
type NodeProcessResult struct {
	NewNodes          int                     `json:"newNodes"`
	Disappeared       int                     `json:"disappeared"`
	Reappeared        int                     `json:"reappeared"`
	Restarts          int                     `json:"restarts"`
	HealthChanges     int                     `json:"healthChanges"`
	VersionChanges    int                     `json:"versionChanges"`
	SnapshotsRecorded int                     `json:"snapshotsRecorded"`
	Snapshot          *models.NetworkSnapshot `json:"-"`
}

// ProcessNodes diffs a dashboard snapshot against the persisted node set.
// The diff compares the snapshot with stored state, not with the previous
// snapshot, so re-processing the same snapshot yields no new events. The
// node-set cursor is written last, only after every other write succeeded.
func (t *NodeTracker) ProcessNodes(ctx context.Context, snapshot []types.NodeSnapshot, maxHeight uint64) (*NodeProcessResult, error) {
	now := time.Now().UTC()
	result := &NodeProcessResult{}

	known, err := t.nodes.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load known nodes: %w", err)
	}
	knownByID := make(map[string]*models.Node, len(known))
	for _, node := range known {
		knownByID[node.NodeID] = node
	}

	previousActive, err := t.loadActiveSet(ctx, known)
	if err != nil {
		return nil, err
	}

	currentIDs := make([]string, 0, len(snapshot))
	currentSet := make(map[string]bool, len(snapshot))
	var events []*models.Event
	var samples []*models.HealthSample

	agg := newSnapshotAggregator(maxHeight)

	for i := range snapshot {
		snap := &snapshot[i]
		if currentSet[snap.NodeID] {
			continue
		}
		currentSet[snap.NodeID] = true
		currentIDs = append(currentIDs, snap.NodeID)

		health := ClassifyHealth(snap.ConsensusRunning, snap.FinalizedBlockHeight, maxHeight)
		existing := knownByID[snap.NodeID]

		switch {
		case existing == nil:
			result.NewNodes++
			events = append(events, newEvent(now, snap.NodeID, types.EventNodeAppeared, "", snap.NodeName, nil))

		case !existing.IsActive:
			result.Reappeared++
			events = append(events, newEvent(now, snap.NodeID, types.EventNodeReappeared, "", snap.NodeName, nil))
		}

		if existing != nil {
			if existing.Client != snap.Client && existing.Client != "" && snap.Client != "" {
				result.VersionChanges++
				events = append(events, newEvent(now, snap.NodeID, types.EventVersionChanged, existing.Client, snap.Client, nil))
			}

			if existing.Health != "" && existing.Health != health {
				result.HealthChanges++
				events = append(events, newEvent(now, snap.NodeID, types.EventHealthChanged, string(existing.Health), string(health), nil))
			}

			// Uptime is monotonic while a process runs, so a decrease is
			// conclusive. Best effort: clock skew or a node resetting its
			// own counter still reads as a restart.
			if existing.IsActive && snap.UptimeMs < existing.UptimeMs {
				result.Restarts++
				events = append(events, newEvent(now, snap.NodeID, types.EventNodeRestarted, "", "", map[string]string{
					"previousUptimeMs": strconv.FormatInt(existing.UptimeMs, 10),
					"currentUptimeMs":  strconv.FormatInt(snap.UptimeMs, 10),
				}))
			}
		}

		node := nodeFromSnapshot(snap, health, now)
		if existing != nil {
			node.FirstSeen = existing.FirstSeen
		}
		if err := t.nodes.Upsert(ctx, node); err != nil {
			return nil, fmt.Errorf("failed to upsert node %s: %w", snap.NodeID, err)
		}

		samples = append(samples, &models.HealthSample{
			NodeID:               snap.NodeID,
			Timestamp:            now,
			Health:               health,
			PeersCount:           snap.PeersCount,
			AveragePing:          snap.AveragePing,
			FinalizedBlockHeight: snap.FinalizedBlockHeight,
			HeightDelta:          FinalizationLag(maxHeight, snap.FinalizedBlockHeight),
			BandwidthIn:          snap.BandwidthIn,
			BandwidthOut:         snap.BandwidthOut,
		})

		agg.observe(snap, health)
	}

	var disappeared []string
	for nodeID := range previousActive {
		if !currentSet[nodeID] {
			disappeared = append(disappeared, nodeID)
			events = append(events, newEvent(now, nodeID, types.EventNodeDisappeared, "", "", nil))
		}
	}
	if len(disappeared) > 0 {
		result.Disappeared = len(disappeared)
		if err := t.nodes.MarkInactive(ctx, disappeared); err != nil {
			return nil, fmt.Errorf("failed to mark nodes inactive: %w", err)
		}
	}

	networkSnapshot := agg.snapshot(now)
	if err := t.snapshots.Insert(ctx, networkSnapshot); err != nil {
		return nil, fmt.Errorf("failed to record network snapshot: %w", err)
	}
	result.SnapshotsRecorded = 1
	result.Snapshot = networkSnapshot

	if err := t.history.BatchInsert(ctx, samples); err != nil {
		return nil, fmt.Errorf("failed to record health history: %w", err)
	}
	if err := t.events.BatchInsert(ctx, events); err != nil {
		return nil, fmt.Errorf("failed to record events: %w", err)
	}

	cursorValue, err := json.Marshal(currentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node set cursor: %w", err)
	}
	if err := t.cursors.Set(ctx, models.CursorNodeSet, string(cursorValue)); err != nil {
		return nil, fmt.Errorf("failed to advance node set cursor: %w", err)
	}

	t.logger.WithFields(map[string]interface{}{
		"nodes":       len(currentIDs),
		"new":         result.NewNodes,
		"disappeared": result.Disappeared,
		"events":      len(events),
	}).Debug("Processed node snapshot")

	return result, nil
}

// GetNewNodesInRange lists nodes first seen inside [since, until]
func (t *NodeTracker) GetNewNodesInRange(ctx context.Context, since, until time.Time) ([]*models.Node, error) {
	return t.nodes.GetNewNodesInRange(ctx, since, until)
}

// GetNodeHealthHistory returns one node's samples inside [since, until].
// With intervalMs > 0 samples are downsampled to one representative, the
// most recent, per time bucket.
func (t *NodeTracker) GetNodeHealthHistory(ctx context.Context, nodeID string, since, until time.Time, intervalMs int64) ([]*models.HealthSample, error) {
	samples, err := t.history.ListByNode(ctx, nodeID, since, until)
	if err != nil {
		return nil, err
	}
	if intervalMs <= 0 {
		return samples, nil
	}
	return DownsampleHealthSamples(samples, intervalMs), nil
}

// DownsampleHealthSamples keeps the most recent sample per bucket, where a
// sample's bucket is floor(timestampMs / intervalMs) * intervalMs. Input must
// be ordered oldest first; output preserves that order.
func DownsampleHealthSamples(samples []*models.HealthSample, intervalMs int64) []*models.HealthSample {
	if len(samples) == 0 || intervalMs <= 0 {
		return samples
	}

	var out []*models.HealthSample
	lastBucket := int64(-1)
	for _, sample := range samples {
		bucket := sample.Timestamp.UnixMilli() / intervalMs * intervalMs
		if bucket == lastBucket && len(out) > 0 {
			out[len(out)-1] = sample
			continue
		}
		out = append(out, sample)
		lastBucket = bucket
	}
	return out
}

// loadActiveSet returns the previously active node IDs: the persisted cursor
// when available, else the nodes currently flagged active. The fallback
// keeps a cold start (no cursor yet) from reporting every stored node as
// disappeared.
func (t *NodeTracker) loadActiveSet(ctx context.Context, known []*models.Node) (map[string]bool, error) {
	active := make(map[string]bool)

	cursor, err := t.cursors.Get(ctx, models.CursorNodeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to read node set cursor: %w", err)
	}
	if cursor != nil {
		var ids []string
		if err := json.Unmarshal([]byte(cursor.Value), &ids); err != nil {
			return nil, fmt.Errorf("corrupt node set cursor: %w", err)
		}
		for _, id := range ids {
			active[id] = true
		}
		return active, nil
	}

	for _, node := range known {
		if node.IsActive {
			active[node.NodeID] = true
		}
	}
	return active, nil
}

func nodeFromSnapshot(snap *types.NodeSnapshot, health types.HealthStatus, now time.Time) *models.Node {
	return &models.Node{
		NodeID:                snap.NodeID,
		NodeName:              snap.NodeName,
		Client:                snap.Client,
		PeerType:              snap.PeerType,
		UptimeMs:              snap.UptimeMs,
		PeersCount:            snap.PeersCount,
		AveragePing:           snap.AveragePing,
		BandwidthIn:           snap.BandwidthIn,
		BandwidthOut:          snap.BandwidthOut,
		ConsensusRunning:      snap.ConsensusRunning,
		BakingCommitteeMember: snap.BakingCommitteeMember,
		ConsensusBakerID:      snap.ConsensusBakerID,
		BestBlockHeight:       snap.BestBlockHeight,
		FinalizedBlockHeight:  snap.FinalizedBlockHeight,
		Health:                health,
		IsActive:              true,
		FirstSeen:             now,
		LastSeen:              now,
	}
}

func newEvent(ts time.Time, nodeID string, eventType types.EventType, oldValue, newValue string, metadata map[string]string) *models.Event {
	id := nodeID
	return &models.Event{
		ID:        uuid.NewString(),
		Timestamp: ts,
		NodeID:    &id,
		EventType: eventType,
		OldValue:  oldValue,
		NewValue:  newValue,
		Metadata:  metadata,
	}
}

// snapshotAggregator accumulates the per-cycle network metrics while the
// diff walks the snapshot once.
type snapshotAggregator struct {
	maxHeight uint64

	total     int
	healthy   int
	lagging   int
	issue     int
	consensus int

	peersSum   int
	latencySum float64
	latencyN   int

	finalizedHeights []uint64
	maxLag           uint64
}

func newSnapshotAggregator(maxHeight uint64) *snapshotAggregator {
	return &snapshotAggregator{maxHeight: maxHeight}
}

func (a *snapshotAggregator) observe(snap *types.NodeSnapshot, health types.HealthStatus) {
	a.total++
	switch health {
	case types.HealthHealthy:
		a.healthy++
	case types.HealthLagging:
		a.lagging++
	case types.HealthIssue:
		a.issue++
	}
	if snap.ConsensusRunning {
		a.consensus++
	}

	a.peersSum += snap.PeersCount
	if snap.AveragePing != nil {
		a.latencySum += *snap.AveragePing
		a.latencyN++
	}

	a.finalizedHeights = append(a.finalizedHeights, snap.FinalizedBlockHeight)
	if lag := FinalizationLag(a.maxHeight, snap.FinalizedBlockHeight); lag > a.maxLag {
		a.maxLag = lag
	}
}

func (a *snapshotAggregator) snapshot(now time.Time) *models.NetworkSnapshot {
	snapshot := &models.NetworkSnapshot{
		Timestamp:          now,
		TotalNodes:         a.total,
		HealthyNodes:       a.healthy,
		LaggingNodes:       a.lagging,
		IssueNodes:         a.issue,
		MaxFinalizationLag: a.maxLag,
	}

	if a.total > 0 {
		snapshot.AvgPeers = float64(a.peersSum) / float64(a.total)
		snapshot.ConsensusParticipation = 100 * float64(a.consensus) / float64(a.total)
	}
	if a.latencyN > 0 {
		snapshot.AvgLatency = a.latencySum / float64(a.latencyN)
	}

	// The score uses the 95th-percentile lag so one badly stalled node
	// cannot crater the network-wide number.
	snapshot.PulseScore = PulseScore(
		Percentile95Lag(a.finalizedHeights),
		snapshot.AvgLatency,
		a.consensus,
		a.total,
	)

	return snapshot
}
