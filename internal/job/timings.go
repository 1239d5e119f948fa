// Package job implements the three poll jobs (blocks, nodes, validators).
// Each job runs fetch-then-process, reports per-stage timings, and advances
// its cursor only after the whole cycle succeeds.
package job

import "time"

// Timings holds per-stage durations in milliseconds
type Timings map[string]int64

// stopwatch measures job stages. Stage names become keys in the result's
// timings map; done() adds the overall totalMs.
type stopwatch struct {
	start   time.Time
	last    time.Time
	timings Timings
}

func newStopwatch() *stopwatch {
	now := time.Now()
	return &stopwatch{start: now, last: now, timings: Timings{}}
}

func (s *stopwatch) stage(name string) {
	now := time.Now()
	s.timings[name] = now.Sub(s.last).Milliseconds()
	s.last = now
}

func (s *stopwatch) done() Timings {
	s.timings["totalMs"] = time.Since(s.start).Milliseconds()
	return s.timings
}
