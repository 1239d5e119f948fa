package models

import "time"

// Block represents a finalized block attributed to a baker. Height is
// globally unique; re-ingesting a known height is an idempotent skip.
type Block struct {
	Height           uint64    `json:"height" db:"height"`
	Hash             string    `json:"hash" db:"hash"`
	BakerID          uint64    `json:"bakerId" db:"baker_id"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
	TransactionCount int       `json:"transactionCount" db:"transaction_count"`
}
