package job

import (
	"context"
	"testing"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/errors"
	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/tracker"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

type mockDashboardSource struct {
	nodes []types.NodeSnapshot
	err   error
}

func (m *mockDashboardSource) GetNodesSummary(ctx context.Context) ([]types.NodeSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.nodes, nil
}

type mockNodeProcessor struct {
	gotMaxHeight uint64
	result       *tracker.NodeProcessResult
}

func (m *mockNodeProcessor) ProcessNodes(ctx context.Context, nodes []types.NodeSnapshot, maxHeight uint64) (*tracker.NodeProcessResult, error) {
	m.gotMaxHeight = maxHeight
	if m.result != nil {
		return m.result, nil
	}
	return &tracker.NodeProcessResult{SnapshotsRecorded: 1, Snapshot: &models.NetworkSnapshot{TotalNodes: len(nodes)}}, nil
}

type mockVisibilityUpdater struct {
	gotPeers []types.ReportingPeer
}

func (m *mockVisibilityUpdater) UpdateVisibilityFromNodes(ctx context.Context, peers []types.ReportingPeer) (*tracker.VisibilityResult, error) {
	m.gotPeers = peers
	return &tracker.VisibilityResult{Updated: 1}, nil
}

type mockPeerSink struct {
	peers []*models.Peer
}

func (m *mockPeerSink) UpsertObservation(ctx context.Context, peer *models.Peer) error {
	m.peers = append(m.peers, peer)
	return nil
}

func dashboardNode(id string, bakerID *uint64, finalized uint64) types.NodeSnapshot {
	return types.NodeSnapshot{
		NodeID:               id,
		NodeName:             "name-" + id,
		ConsensusRunning:     true,
		ConsensusBakerID:     bakerID,
		FinalizedBlockHeight: finalized,
	}
}

func TestNodePollJob_Success(t *testing.T) {
	baker := uint64(7)
	dashboard := &mockDashboardSource{nodes: []types.NodeSnapshot{
		dashboardNode("a", &baker, 1000),
		dashboardNode("b", nil, 995),
	}}
	processor := &mockNodeProcessor{}
	visibility := &mockVisibilityUpdater{}
	peers := &mockPeerSink{}
	cache := newMockResultCache()

	job := NewNodePollJob(dashboard, processor, visibility, peers, cache, time.Minute, jobLogger())

	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !result.Success || result.Mode != "full" {
		t.Errorf("result = {success: %v, mode: %q}, want {true, full}", result.Success, result.Mode)
	}
	if result.NodesPolled != 2 {
		t.Errorf("NodesPolled = %d, want 2", result.NodesPolled)
	}
	if result.MaxHeight != 1000 || processor.gotMaxHeight != 1000 {
		t.Errorf("max height = %d (processor saw %d), want 1000", result.MaxHeight, processor.gotMaxHeight)
	}
	if len(peers.peers) != 2 || peers.peers[0].Source != types.SourceReporting {
		t.Errorf("peer observations = %d with source %v, want 2 reporting", len(peers.peers), peers.peers[0].Source)
	}
	if len(visibility.gotPeers) != 2 {
		t.Errorf("linkage saw %d peers, want 2", len(visibility.gotPeers))
	}
	if visibility.gotPeers[0].ConsensusBakerID == nil || *visibility.gotPeers[0].ConsensusBakerID != 7 {
		t.Errorf("linkage lost the baker ID projection")
	}
	if result.ValidatorVisibility == nil || result.ValidatorVisibility.Updated != 1 {
		t.Errorf("ValidatorVisibility = %+v, want Updated 1", result.ValidatorVisibility)
	}
	if cache.stored["nodes"] == nil {
		t.Error("result not cached")
	}
	for _, stage := range []string{"fetchMs", "processMs", "peersMs", "visibilityMs", "totalMs"} {
		if _, ok := result.Timings[stage]; !ok {
			t.Errorf("timings missing stage %s", stage)
		}
	}
}

func TestNodePollJob_UpstreamFailureAborts(t *testing.T) {
	dashboard := &mockDashboardSource{err: errors.NewUpstreamUnavailableError("dashboard", nil)}
	processor := &mockNodeProcessor{}
	peers := &mockPeerSink{}

	job := NewNodePollJob(dashboard, processor, &mockVisibilityUpdater{}, peers, newMockResultCache(), time.Minute, jobLogger())

	result, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want upstream failure")
	}
	if !errors.IsUpstream(err) {
		t.Errorf("error category = %v, want upstream", errors.Categorize(err).Category)
	}
	if result.Success {
		t.Error("result success = true on failed fetch")
	}
	if len(peers.peers) != 0 {
		t.Error("peers written despite aborted cycle")
	}
	if _, ok := result.Timings["totalMs"]; !ok {
		t.Error("failed result still needs timings")
	}
}
