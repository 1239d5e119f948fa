package tracker

import (
	"testing"

	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestClassifyHealth_LagBoundaries(t *testing.T) {
	const maxHeight = uint64(1000)

	tests := []struct {
		name             string
		consensusRunning bool
		finalizedHeight  uint64
		want             types.HealthStatus
	}{
		{"no lag", true, 1000, types.HealthHealthy},
		{"lag 2 is healthy", true, 998, types.HealthHealthy},
		{"lag 3 is lagging", true, 997, types.HealthLagging},
		{"lag 5 is lagging", true, 995, types.HealthLagging},
		{"lag 6 is issue", true, 994, types.HealthIssue},
		{"consensus stopped overrides zero lag", false, 1000, types.HealthIssue},
		{"consensus stopped overrides small lag", false, 999, types.HealthIssue},
		{"ahead of observed max is healthy", true, 1003, types.HealthHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyHealth(tt.consensusRunning, tt.finalizedHeight, maxHeight)
			if got != tt.want {
				t.Errorf("ClassifyHealth(%v, %d, %d) = %v, want %v",
					tt.consensusRunning, tt.finalizedHeight, maxHeight, got, tt.want)
			}
		})
	}
}

func TestFinalizationLag(t *testing.T) {
	if got := FinalizationLag(100, 95); got != 5 {
		t.Errorf("FinalizationLag(100, 95) = %d, want 5", got)
	}
	if got := FinalizationLag(100, 100); got != 0 {
		t.Errorf("FinalizationLag(100, 100) = %d, want 0", got)
	}
	if got := FinalizationLag(95, 100); got != 0 {
		t.Errorf("FinalizationLag(95, 100) = %d, want 0 (clamped)", got)
	}
}

func TestPercentile95Lag(t *testing.T) {
	heights := []uint64{100, 95}
	for i := 0; i < 19; i++ {
		heights = append(heights, 90)
	}
	// n=21: index floor(21*0.05)=1, lag = 100-95
	if got := Percentile95Lag(heights); got != 5 {
		t.Errorf("Percentile95Lag(n=21) = %d, want 5", got)
	}

	if got := Percentile95Lag(nil); got != 0 {
		t.Errorf("Percentile95Lag(nil) = %d, want 0", got)
	}
	if got := Percentile95Lag([]uint64{42}); got != 0 {
		t.Errorf("Percentile95Lag(single) = %d, want 0", got)
	}
}

func TestHealthProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("lag is max(0, maxHeight - finalized)", prop.ForAll(
		func(maxHeight, finalized uint64) bool {
			lag := FinalizationLag(maxHeight, finalized)
			if finalized >= maxHeight {
				return lag == 0
			}
			return lag == maxHeight-finalized
		},
		gen.UInt64Range(0, 1<<40),
		gen.UInt64Range(0, 1<<40),
	))

	properties.Property("stopped consensus is always an issue", prop.ForAll(
		func(maxHeight, finalized uint64) bool {
			return ClassifyHealth(false, finalized, maxHeight) == types.HealthIssue
		},
		gen.UInt64Range(0, 1<<40),
		gen.UInt64Range(0, 1<<40),
	))

	properties.Property("running consensus classification follows lag thresholds", prop.ForAll(
		func(maxHeight, finalized uint64) bool {
			got := ClassifyHealth(true, finalized, maxHeight)
			switch lag := FinalizationLag(maxHeight, finalized); {
			case lag <= 2:
				return got == types.HealthHealthy
			case lag <= 5:
				return got == types.HealthLagging
			default:
				return got == types.HealthIssue
			}
		},
		gen.UInt64Range(0, 1<<40),
		gen.UInt64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}
