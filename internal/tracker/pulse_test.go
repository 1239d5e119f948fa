package tracker

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPulseScore_KnownValues(t *testing.T) {
	tests := []struct {
		name           string
		lag            uint64
		latency        float64
		consensusNodes int
		totalNodes     int
		want           float64
	}{
		{"empty network", 0, 0, 0, 0, 70},
		{"perfect network", 0, 50, 10, 10, 100},
		{"all participation no lag", 0, 150, 20, 20, 100},
		{"heavy lag is capped", 100, 0, 10, 10, 60},
		{"latency below floor is free", 0, 149, 10, 10, 100},
		{"no participation", 0, 0, 0, 10, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PulseScore(tt.lag, tt.latency, tt.consensusNodes, tt.totalNodes)
			if got != tt.want {
				t.Errorf("PulseScore(%d, %v, %d, %d) = %v, want %v",
					tt.lag, tt.latency, tt.consensusNodes, tt.totalNodes, got, tt.want)
			}
		})
	}
}

func TestPulseScoreProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("score stays in [0, 100]", prop.ForAll(
		func(lag uint64, latency float64, consensus, total int) bool {
			score := PulseScore(lag, latency, consensus, total)
			return score >= 0 && score <= 100
		},
		gen.UInt64Range(0, 1<<32),
		gen.Float64Range(0, 1e6),
		gen.IntRange(0, 10000),
		gen.IntRange(0, 10000),
	))

	properties.Property("deterministic for identical inputs", prop.ForAll(
		func(lag uint64, latency float64, consensus, total int) bool {
			return PulseScore(lag, latency, consensus, total) == PulseScore(lag, latency, consensus, total)
		},
		gen.UInt64Range(0, 1<<32),
		gen.Float64Range(0, 1e6),
		gen.IntRange(0, 10000),
		gen.IntRange(0, 10000),
	))

	properties.Property("more lag never raises the score", prop.ForAll(
		func(lag uint64, latency float64, consensus, total int) bool {
			return PulseScore(lag+1, latency, consensus, total) <= PulseScore(lag, latency, consensus, total)
		},
		gen.UInt64Range(0, 1<<32),
		gen.Float64Range(0, 1e6),
		gen.IntRange(0, 10000),
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t)
}
