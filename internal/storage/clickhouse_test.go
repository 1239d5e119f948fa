package storage

import (
	"testing"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/config"
	"github.com/h4x0r/concordium-node-map-sub002/internal/models"
)

func setupTestClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()

	// Skip if not in integration test mode
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "node_map",
		User:     "default",
		Password: "",
	}

	db, err := NewClickHouseDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
		return nil
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestNewClickHouseDB(t *testing.T) {
	db := setupTestClickHouse(t)

	ctx := testContext(t)
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestSnapshotRepository_InsertAndLatest(t *testing.T) {
	db := setupTestClickHouse(t)
	ctx := testContext(t)

	repo := NewSnapshotRepository(db)

	snapshot := &models.NetworkSnapshot{
		Timestamp:              time.Now().UTC().Truncate(time.Millisecond),
		TotalNodes:             10,
		HealthyNodes:           8,
		LaggingNodes:           1,
		IssueNodes:             1,
		AvgPeers:               7.5,
		AvgLatency:             120.0,
		MaxFinalizationLag:     3,
		ConsensusParticipation: 80.0,
		PulseScore:             88.0,
	}

	if err := repo.Insert(ctx, snapshot); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	latest, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest == nil {
		t.Fatal("Latest() = nil after insert")
	}
	if latest.TotalNodes == 0 {
		t.Errorf("latest snapshot = %+v, want populated counts", latest)
	}
}
