package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/h4x0r/concordium-node-map-sub002/internal/errors"
	"github.com/h4x0r/concordium-node-map-sub002/internal/job"
	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
	"github.com/h4x0r/concordium-node-map-sub002/internal/storage"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

const testSecret = "test-secret"

type mockBlockJob struct {
	result      *job.BlockPollResult
	err         error
	failTimings job.Timings
	runs        int
}

func (m *mockBlockJob) Run(ctx context.Context) (*job.BlockPollResult, error) {
	m.runs++
	if m.err != nil {
		return &job.BlockPollResult{Timings: m.failTimings}, m.err
	}
	return m.result, nil
}

type mockNodeJob struct {
	result      *job.NodePollResult
	err         error
	failTimings job.Timings
	runs        int
}

func (m *mockNodeJob) Run(ctx context.Context) (*job.NodePollResult, error) {
	m.runs++
	if m.err != nil {
		return &job.NodePollResult{Timings: m.failTimings}, m.err
	}
	return m.result, nil
}

type mockValidatorJob struct {
	result *job.ValidatorPollResult
	err    error
}

func (m *mockValidatorJob) Run(ctx context.Context) (*job.ValidatorPollResult, error) {
	if m.err != nil {
		return &job.ValidatorPollResult{}, m.err
	}
	return m.result, nil
}

type mockPeerReader struct {
	peers []*models.Peer
	err   error
}

func (m *mockPeerReader) List(ctx context.Context) ([]*models.Peer, error) {
	return m.peers, m.err
}

type mockValidatorReader struct {
	validators []*models.Validator
	err        error
}

func (m *mockValidatorReader) GetAll(ctx context.Context) ([]*models.Validator, error) {
	return m.validators, m.err
}

type mockEventReader struct {
	events     []*models.Event
	gotFilters *storage.EventFilters
	err        error
}

func (m *mockEventReader) List(ctx context.Context, filters *storage.EventFilters) ([]*models.Event, error) {
	m.gotFilters = filters
	return m.events, m.err
}

type mockNodeHistoryReader struct {
	newNodes      []*models.Node
	samples       []*models.HealthSample
	gotNodeID     string
	gotIntervalMs int64
	gotSince      time.Time
	gotUntil      time.Time
}

func (m *mockNodeHistoryReader) GetNewNodesInRange(ctx context.Context, since, until time.Time) ([]*models.Node, error) {
	m.gotSince = since
	m.gotUntil = until
	return m.newNodes, nil
}

func (m *mockNodeHistoryReader) GetNodeHealthHistory(ctx context.Context, nodeID string, since, until time.Time, intervalMs int64) ([]*models.HealthSample, error) {
	m.gotNodeID = nodeID
	m.gotIntervalMs = intervalMs
	return m.samples, nil
}

type mockPollCache struct {
	results map[string]string
}

func (m *mockPollCache) Load(ctx context.Context, kind string, dest interface{}) (bool, error) {
	raw, ok := m.results[kind]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), dest)
}

type mockSnapshotReader struct {
	snapshots []*models.NetworkSnapshot
	latest    *models.NetworkSnapshot
}

func (m *mockSnapshotReader) List(ctx context.Context, since, until time.Time) ([]*models.NetworkSnapshot, error) {
	return m.snapshots, nil
}

func (m *mockSnapshotReader) Latest(ctx context.Context) (*models.NetworkSnapshot, error) {
	return m.latest, nil
}

type serverFixture struct {
	server     *Server
	blockJob   *mockBlockJob
	nodeJob    *mockNodeJob
	valJob     *mockValidatorJob
	peers      *mockPeerReader
	validators *mockValidatorReader
	events     *mockEventReader
	nodes      *mockNodeHistoryReader
	snapshots  *mockSnapshotReader
	pollCache  *mockPollCache
}

func newServerFixture(secret string) *serverFixture {
	f := &serverFixture{
		blockJob:   &mockBlockJob{result: &job.BlockPollResult{Success: true}},
		nodeJob:    &mockNodeJob{result: &job.NodePollResult{Success: true, Mode: "full"}},
		valJob:     &mockValidatorJob{result: &job.ValidatorPollResult{Success: true}},
		peers:      &mockPeerReader{},
		validators: &mockValidatorReader{},
		events:     &mockEventReader{},
		nodes:      &mockNodeHistoryReader{},
		snapshots:  &mockSnapshotReader{},
		pollCache:  &mockPollCache{results: map[string]string{}},
	}

	config := &ServerConfig{
		Host:             "127.0.0.1",
		Port:             "0",
		PollBearerSecret: secret,
	}

	f.server = NewServer(
		config,
		f.blockJob, f.nodeJob, f.valJob,
		f.peers, f.validators, f.events, f.nodes, f.snapshots, f.pollCache,
		logging.NewLogger(logging.LevelError, logging.FormatText),
	)

	return f
}

func (f *serverFixture) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
}

func TestPollTrigger_NoTokenReturnsMetadata(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "POST", "/jobs/poll-nodes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 metadata probe", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["authenticated"] != false {
		t.Errorf("authenticated = %v, want false", body["authenticated"])
	}
	if body["endpoint"] != "/jobs/poll-nodes" {
		t.Errorf("endpoint = %v, want /jobs/poll-nodes", body["endpoint"])
	}
	if f.nodeJob.runs != 0 {
		t.Error("job ran on an unauthenticated probe")
	}
}

func TestPollTrigger_WrongToken(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "POST", "/jobs/poll-blocks", "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if f.blockJob.runs != 0 {
		t.Error("job ran with an invalid token")
	}
}

func TestPollTrigger_DisabledWithoutSecret(t *testing.T) {
	f := newServerFixture("")

	rec := f.do(t, "POST", "/jobs/poll-blocks", testSecret)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 when triggers are unconfigured", rec.Code)
	}
}

func TestPollTrigger_RunsJobOnValidToken(t *testing.T) {
	f := newServerFixture(testSecret)
	f.blockJob.result = &job.BlockPollResult{
		Success: true,
		BlockTracking: &job.BlockTracking{
			LatestHeight:    5000,
			BlocksProcessed: 12,
		},
	}

	rec := f.do(t, "POST", "/jobs/poll-blocks", testSecret)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if f.blockJob.runs != 1 {
		t.Fatalf("job runs = %d, want 1", f.blockJob.runs)
	}

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
}

func TestPollTrigger_FailureKeepsStageTimings(t *testing.T) {
	f := newServerFixture(testSecret)
	f.blockJob.err = apperrors.NewUpstreamUnavailableError("chain rpc", nil)
	f.blockJob.failTimings = job.Timings{"fetchMs": 12, "totalMs": 12}

	rec := f.do(t, "POST", "/jobs/poll-blocks", testSecret)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	errObj, ok := body["error"].(map[string]interface{})
	if !ok || errObj["code"] != "UPSTREAM_UNAVAILABLE" {
		t.Errorf("error = %v, want UPSTREAM_UNAVAILABLE", body["error"])
	}
	timings, ok := body["timings"].(map[string]interface{})
	if !ok {
		t.Fatalf("failure body dropped timings: %v", body)
	}
	if timings["fetchMs"] != float64(12) {
		t.Errorf("fetchMs = %v, want 12", timings["fetchMs"])
	}
}

func TestPollTrigger_UpstreamFailureIs502(t *testing.T) {
	f := newServerFixture(testSecret)
	f.nodeJob.err = apperrors.NewUpstreamUnavailableError("dashboard", nil)

	rec := f.do(t, "POST", "/jobs/poll-nodes", testSecret)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 for an upstream failure", rec.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if errResp.Error.Code != "UPSTREAM_UNAVAILABLE" {
		t.Errorf("error code = %q, want UPSTREAM_UNAVAILABLE", errResp.Error.Code)
	}
}

func TestPollTrigger_InternalFailureIs500(t *testing.T) {
	f := newServerFixture(testSecret)
	f.valJob.err = apperrors.NewDatabaseError("upsert validators", nil)

	rec := f.do(t, "POST", "/jobs/poll-validators", testSecret)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for a tracker-side failure", rec.Code)
	}
}

func TestListPeers_OrderedByProvenance(t *testing.T) {
	f := newServerFixture(testSecret)
	f.peers.peers = []*models.Peer{
		{PeerID: "peer-b", Source: types.SourceInferred},
		{PeerID: "peer-a", Source: types.SourceReporting},
		{PeerID: "peer-c", Source: types.SourceGRPC},
	}

	rec := f.do(t, "GET", "/api/peers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	listed, ok := body["peers"].([]interface{})
	if !ok || len(listed) != 3 {
		t.Fatalf("peers = %v, want 3 entries", body["peers"])
	}

	want := []string{"peer-a", "peer-c", "peer-b"}
	for i, entry := range listed {
		peer, ok := entry.(map[string]interface{})
		if !ok {
			t.Fatalf("peer entry %d = %v", i, entry)
		}
		if peer["peerId"] != want[i] {
			t.Fatalf("peer order position %d = %v, want %s (reporting > grpc > inferred)", i, peer["peerId"], want[i])
		}
	}
}

func TestListValidators_Summary(t *testing.T) {
	peerID := "peer-1"
	f := newServerFixture(testSecret)
	f.validators.validators = []*models.Validator{
		{BakerID: 1, Source: types.ValidatorReporting, LinkedPeerID: &peerID, LotteryPower: 0.60},
		{BakerID: 2, Source: types.ValidatorChainOnly, LotteryPower: 0.40},
	}

	rec := f.do(t, "GET", "/api/validators", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	summary, ok := body["summary"].(map[string]interface{})
	if !ok {
		t.Fatalf("summary missing from body: %v", body)
	}
	if summary["visible"] != float64(1) || summary["phantom"] != float64(1) {
		t.Errorf("summary counts = %v/%v, want 1/1", summary["visible"], summary["phantom"])
	}
	if pct := summary["stakeVisibilityPct"].(float64); pct < 59.9 || pct > 60.1 {
		t.Errorf("stakeVisibilityPct = %v, want 60", pct)
	}
	if summary["quorumHealth"] != "degraded" {
		t.Errorf("quorumHealth = %v, want degraded", summary["quorumHealth"])
	}
}

func TestListEvents_Filters(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "GET", "/api/events?type=restarted&nodeId=node-1&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	filters := f.events.gotFilters
	if filters == nil {
		t.Fatal("repository never queried")
	}
	if filters.NodeID != "node-1" || filters.EventType != types.EventNodeRestarted || filters.Limit != 5 {
		t.Errorf("filters = %+v, want node-1/restarted/5", filters)
	}
	if filters.Since == nil || filters.Until == nil {
		t.Error("default time window not applied")
	}
}

func TestListEvents_UnknownTypeRejected(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "GET", "/api/events?type=exploded", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown event type", rec.Code)
	}
}

func TestNewNodes_InvalidTimeRejected(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "GET", "/api/nodes/new?since=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed timestamp", rec.Code)
	}
}

func TestNewNodes_ExplicitWindow(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "GET", "/api/nodes/new?since=2026-08-01T00:00:00Z&until=2026-08-02T00:00:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	wantSince := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !f.nodes.gotSince.Equal(wantSince) {
		t.Errorf("since = %v, want %v", f.nodes.gotSince, wantSince)
	}
}

func TestNewNodes_InvertedWindowRejected(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "GET", "/api/nodes/new?since=2026-08-02T00:00:00Z&until=2026-08-01T00:00:00Z", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 when since is after until", rec.Code)
	}
}

func TestHealthHistory_PassesInterval(t *testing.T) {
	f := newServerFixture(testSecret)
	f.nodes.samples = []*models.HealthSample{{NodeID: "node-1", Health: types.HealthHealthy}}

	rec := f.do(t, "GET", "/api/nodes/node-1/health-history?intervalMs=60000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.nodes.gotNodeID != "node-1" || f.nodes.gotIntervalMs != 60000 {
		t.Errorf("history query = %q/%d, want node-1/60000", f.nodes.gotNodeID, f.nodes.gotIntervalMs)
	}

	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestNetworkSummary_EmptyBeforeFirstPoll(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "GET", "/api/network/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["available"] != false {
		t.Errorf("available = %v, want false before any snapshot exists", body["available"])
	}
}

func TestNetworkSummary_LatestSnapshot(t *testing.T) {
	f := newServerFixture(testSecret)
	f.snapshots.latest = &models.NetworkSnapshot{TotalNodes: 42, PulseScore: 88.5}
	f.pollCache.results["nodes"] = `{"success": true, "nodesPolled": 42}`

	rec := f.do(t, "GET", "/api/network/summary", "")
	body := decodeBody(t, rec)
	if body["available"] != true {
		t.Fatalf("available = %v, want true", body["available"])
	}
	snap := body["snapshot"].(map[string]interface{})
	if snap["totalNodes"] != float64(42) {
		t.Errorf("totalNodes = %v, want 42", snap["totalNodes"])
	}

	polls := body["lastPolls"].(map[string]interface{})
	if _, ok := polls["nodes"]; !ok {
		t.Error("cached node poll missing from summary")
	}
	if _, ok := polls["blocks"]; ok {
		t.Error("expired poll kinds must be omitted, not null")
	}
}

func TestCORSHeadersPresent(t *testing.T) {
	f := newServerFixture(testSecret)

	rec := f.do(t, "GET", "/health", "")
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS headers missing")
	}
}
