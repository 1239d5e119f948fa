// Package types provides common type definitions for the network tracker system.
package types

import "time"

// PeerSource represents how a peer was discovered
type PeerSource string

const (
	// SourceReporting represents peers seen through the dashboard summary feed
	SourceReporting PeerSource = "reporting"
	// SourceGRPC represents peers discovered through a node's gRPC peer list
	SourceGRPC PeerSource = "grpc"
	// SourceInferred represents peers inferred from other peers' peer lists
	SourceInferred PeerSource = "inferred"
)

// SourceRank returns the authority rank of a peer source. Higher wins on
// conflicting writes for the same peer.
func SourceRank(s PeerSource) int {
	switch s {
	case SourceReporting:
		return 3
	case SourceGRPC:
		return 2
	case SourceInferred:
		return 1
	default:
		return 0
	}
}

// ValidatorSource represents how a validator is currently observed
type ValidatorSource string

const (
	// ValidatorReporting represents a validator linked to a reporting peer
	ValidatorReporting ValidatorSource = "reporting"
	// ValidatorChainOnly represents a phantom validator visible only on chain
	ValidatorChainOnly ValidatorSource = "chain_only"
)

// HealthStatus represents a node's health classification
type HealthStatus string

const (
	// HealthHealthy represents a node within 2 blocks of the network's finalized head
	HealthHealthy HealthStatus = "healthy"
	// HealthLagging represents a node between 3 and 5 blocks behind
	HealthLagging HealthStatus = "lagging"
	// HealthIssue represents a node with consensus stopped or more than 5 blocks behind
	HealthIssue HealthStatus = "issue"
)

// QuorumHealth represents how much lottery power is backed by reporting validators
type QuorumHealth string

const (
	// QuorumHealthy represents stake visibility of 70% or more
	QuorumHealthy QuorumHealth = "healthy"
	// QuorumDegraded represents stake visibility between 50% and 70%
	QuorumDegraded QuorumHealth = "degraded"
	// QuorumCritical represents stake visibility below 50%
	QuorumCritical QuorumHealth = "critical"
)

// EventType represents the kind of a node change event
type EventType string

const (
	// EventNodeAppeared represents a node seen for the first time
	EventNodeAppeared EventType = "node_appeared"
	// EventNodeDisappeared represents an active node missing from a snapshot
	EventNodeDisappeared EventType = "node_disappeared"
	// EventNodeReappeared represents an inactive node present again
	EventNodeReappeared EventType = "node_reappeared"
	// EventNodeRestarted represents a node whose reported uptime decreased
	EventNodeRestarted EventType = "restarted"
	// EventHealthChanged represents a change in health classification
	EventHealthChanged EventType = "health_changed"
	// EventVersionChanged represents a change in the node's client version
	EventVersionChanged EventType = "version_changed"
)

// EventTypes lists every event kind the tracker can emit. The set is closed:
// consumers may exhaustively switch over it.
func EventTypes() []EventType {
	return []EventType{
		EventNodeAppeared,
		EventNodeDisappeared,
		EventNodeReappeared,
		EventNodeRestarted,
		EventHealthChanged,
		EventVersionChanged,
	}
}

// IsValidEventType reports whether t is a known event kind
func IsValidEventType(t EventType) bool {
	for _, known := range EventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NodeSnapshot represents one reporting node as observed in a single
// dashboard poll. Fields are validated and coerced at the fetch boundary;
// tracker logic never sees raw dashboard JSON.
type NodeSnapshot struct {
	NodeID                string     `json:"nodeId"`
	NodeName              string     `json:"nodeName"`
	Client                string     `json:"client"`
	PeerType              string     `json:"peerType"`
	UptimeMs              int64      `json:"uptime"`
	PeersCount            int        `json:"peersCount"`
	PeersList             []string   `json:"peersList,omitempty"`
	AveragePing           *float64   `json:"averagePing,omitempty"`
	PacketsSent           int64      `json:"packetsSent"`
	PacketsReceived       int64      `json:"packetsReceived"`
	BandwidthIn           int64      `json:"bandwidthIn"`
	BandwidthOut          int64      `json:"bandwidthOut"`
	ConsensusRunning      bool       `json:"consensusRunning"`
	BakingCommitteeMember string     `json:"bakingCommitteeMember,omitempty"`
	ConsensusBakerID      *uint64    `json:"consensusBakerId,omitempty"`
	BestBlockHeight       uint64     `json:"bestBlockHeight"`
	FinalizedBlockHeight  uint64     `json:"finalizedBlockHeight"`
	FinalizedTime         *time.Time `json:"finalizedTime,omitempty"`
}

// ChainBlock represents one finalized block as returned by the node RPC
type ChainBlock struct {
	Height           uint64    `json:"height"`
	Hash             string    `json:"hash"`
	BakerID          uint64    `json:"bakerId"`
	Timestamp        time.Time `json:"timestamp"`
	TransactionCount int       `json:"transactionCount"`
}

// RegistryValidator represents one validator as returned by the on-chain
// validator registry listing.
type RegistryValidator struct {
	BakerID          uint64  `json:"bakerId"`
	AccountAddress   string  `json:"accountAddress"`
	EquityCapital    string  `json:"equityCapital"`
	DelegatedCapital string  `json:"delegatedCapital"`
	TotalStake       string  `json:"totalStake"`
	LotteryPower     float64 `json:"lotteryPower"`
	InCurrentPayday  bool    `json:"inCurrentPayday"`
}

// ReportingPeer is the minimal projection of a dashboard node used for
// validator linkage without contacting the chain RPC.
type ReportingPeer struct {
	PeerID           string  `json:"peerId"`
	ConsensusBakerID *uint64 `json:"consensusBakerId,omitempty"`
	NodeName         string  `json:"nodeName"`
}
