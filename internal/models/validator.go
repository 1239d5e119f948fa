package models

import (
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// Validator represents an on-chain baker. Source is "reporting" exactly when
// LinkedPeerID is set; flipping that pair is the only mutation of Source and
// every flip increments StateTransitionCount.
type Validator struct {
	BakerID              uint64                `json:"bakerId" db:"baker_id"`
	AccountAddress       string                `json:"accountAddress" db:"account_address"`
	Source               types.ValidatorSource `json:"source" db:"source"`
	LinkedPeerID         *string               `json:"linkedPeerId,omitempty" db:"linked_peer_id"`
	LinkedNodeName       *string               `json:"linkedNodeName,omitempty" db:"linked_node_name"`
	EquityCapital        string                `json:"equityCapital" db:"equity_capital"`
	DelegatedCapital     string                `json:"delegatedCapital" db:"delegated_capital"`
	TotalStake           string                `json:"totalStake" db:"total_stake"`
	LotteryPower         float64               `json:"lotteryPower" db:"lottery_power"`
	Blocks24h            int64                 `json:"blocks24h" db:"blocks_24h"`
	Blocks7d             int64                 `json:"blocks7d" db:"blocks_7d"`
	Blocks30d            int64                 `json:"blocks30d" db:"blocks_30d"`
	Transactions24h      int64                 `json:"transactions24h" db:"transactions_24h"`
	Transactions7d       int64                 `json:"transactions7d" db:"transactions_7d"`
	Transactions30d      int64                 `json:"transactions30d" db:"transactions_30d"`
	InCurrentPayday      bool                  `json:"inCurrentPayday" db:"in_current_payday"`
	StateTransitionCount int                   `json:"stateTransitionCount" db:"state_transition_count"`
	FirstObserved        time.Time             `json:"firstObserved" db:"first_observed"`
	LastChainUpdate      *time.Time            `json:"lastChainUpdate,omitempty" db:"last_chain_update"`
}

// IsVisible reports whether the validator is currently backed by a reporting peer
func (v *Validator) IsVisible() bool {
	return v.Source == types.ValidatorReporting && v.LinkedPeerID != nil
}
