package job

import (
	"context"
	"testing"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/errors"
	"github.com/h4x0r/concordium-node-map-sub002/internal/tracker"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

type mockRegistrySource struct {
	validators []types.RegistryValidator
	skipped    int
	err        error
}

func (m *mockRegistrySource) GetValidators(ctx context.Context) ([]types.RegistryValidator, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.validators, m.skipped, nil
}

type mockValidatorProcessor struct {
	gotRegistry    []types.RegistryValidator
	gotPeers       []types.ReportingPeer
	gotFetchErrors int
}

func (m *mockValidatorProcessor) ProcessValidators(ctx context.Context, registry []types.RegistryValidator, peers []types.ReportingPeer, fetchErrors int) (*tracker.ValidatorProcessResult, error) {
	m.gotRegistry = registry
	m.gotPeers = peers
	m.gotFetchErrors = fetchErrors
	return &tracker.ValidatorProcessResult{
		TotalValidators: len(registry),
		FetchErrors:     fetchErrors,
		QuorumHealth:    types.QuorumCritical,
	}, nil
}

func TestValidatorPollJob_Success(t *testing.T) {
	baker := uint64(3)
	registry := &mockRegistrySource{
		validators: []types.RegistryValidator{{BakerID: 3}, {BakerID: 4}},
		skipped:    2,
	}
	dashboard := &mockDashboardSource{nodes: []types.NodeSnapshot{dashboardNode("a", &baker, 100)}}
	processor := &mockValidatorProcessor{}
	cache := newMockResultCache()

	job := NewValidatorPollJob(registry, dashboard, processor, cache, time.Minute, jobLogger())

	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !result.Success || result.Mode != "validators-only" {
		t.Errorf("result = {success: %v, mode: %q}, want {true, validators-only}", result.Success, result.Mode)
	}
	if result.NodesForLinking != 1 {
		t.Errorf("NodesForLinking = %d, want 1", result.NodesForLinking)
	}
	if len(processor.gotRegistry) != 2 || len(processor.gotPeers) != 1 {
		t.Errorf("processor saw %d registry entries and %d peers, want 2 and 1",
			len(processor.gotRegistry), len(processor.gotPeers))
	}
	if processor.gotFetchErrors != 2 {
		t.Errorf("fetchErrors = %d, want skipped count carried through", processor.gotFetchErrors)
	}
	if cache.stored["validators"] == nil {
		t.Error("result not cached")
	}
}

func TestValidatorPollJob_RegistryUnreachable(t *testing.T) {
	registry := &mockRegistrySource{err: errors.NewUpstreamUnavailableError("chain rpc", nil)}
	dashboard := &mockDashboardSource{}

	job := NewValidatorPollJob(registry, dashboard, &mockValidatorProcessor{}, newMockResultCache(), time.Minute, jobLogger())

	result, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want upstream failure")
	}
	if !errors.IsUpstream(err) {
		t.Errorf("error category = %v, want upstream", errors.Categorize(err).Category)
	}
	if result.ValidatorTracking != nil {
		t.Error("tracking populated despite failed fetch")
	}
}
