package models

import "time"

// Poll cursor names. One row per poll type in the poll_cursors table.
const (
	CursorBlockHeight = "block_height"
	CursorNodeSet     = "node_set"
)

// PollCursor represents persisted per-job progress. Cursors are read at the
// start of a job and written only after the whole cycle succeeds, so a retry
// after a mid-job failure re-runs from the same baseline.
type PollCursor struct {
	Name      string    `json:"name" db:"name"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
