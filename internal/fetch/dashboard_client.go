// Package fetch provides typed clients for the external data sources: the
// dashboard summary API and the node RPC. Raw upstream JSON is validated and
// coerced into strict internal types here; tracker logic never sees it.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/errors"
	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/retry"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// DashboardClient fetches the reporting-node summary feed
type DashboardClient struct {
	baseURL     string
	client      *http.Client
	retryConfig *retry.RetryConfig
}

// NewDashboardClient creates a new dashboard API client
func NewDashboardClient(baseURL string, timeout time.Duration) *DashboardClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DashboardClient{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: timeout},
		retryConfig: retry.DefaultRetryConfig(),
	}
}

// rawDashboardNode mirrors the loosely-typed dashboard JSON. Numeric fields
// arrive as float64 or null depending on node version, so everything is
// pointer-typed and coerced below.
type rawDashboardNode struct {
	NodeID                   *string  `json:"nodeId"`
	NodeName                 *string  `json:"nodeName"`
	Client                   *string  `json:"client"`
	PeerType                 *string  `json:"peerType"`
	Uptime                   *float64 `json:"uptime"`
	PeersCount               *float64 `json:"peersCount"`
	PeersList                []string `json:"peersList"`
	AveragePing              *float64 `json:"averagePing"`
	PacketsSent              *float64 `json:"packetsSent"`
	PacketsReceived          *float64 `json:"packetsReceived"`
	AverageBytesPerSecondIn  *float64 `json:"averageBytesPerSecondIn"`
	AverageBytesPerSecondOut *float64 `json:"averageBytesPerSecondOut"`
	ConsensusRunning         *bool    `json:"consensusRunning"`
	BakingCommitteeMember    *string  `json:"bakingCommitteeMember"`
	ConsensusBakerID         *float64 `json:"consensusBakerId"`
	BestBlockHeight          *float64 `json:"bestBlockHeight"`
	FinalizedBlockHeight     *float64 `json:"finalizedBlockHeight"`
	FinalizedTime            *string  `json:"finalizedTime"`
}

// GetNodesSummary fetches the current reporting-node snapshot. Transient
// upstream failures are retried with exponential backoff. Entries without a
// usable node ID are dropped; an entirely empty feed is treated as upstream
// unavailability, never as "every node disappeared".
func (c *DashboardClient) GetNodesSummary(ctx context.Context) ([]types.NodeSnapshot, error) {
	url := fmt.Sprintf("%s/nodesSummary", c.baseURL)

	var body []byte
	result := retry.WithExponentialBackoff(ctx, c.retryConfig, func(ctx context.Context, attempt int) error {
		var err error
		body, err = c.fetchSummaryBody(ctx, url)
		return err
	})
	if !result.Success {
		return nil, result.LastError
	}

	var raw []rawDashboardNode
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.NewUpstreamUnavailableError("dashboard",
			fmt.Errorf("malformed summary payload: %w", err))
	}

	nodes := make([]types.NodeSnapshot, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		node, ok := coerceNode(r)
		if !ok {
			dropped++
			continue
		}
		nodes = append(nodes, node)
	}

	if dropped > 0 {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"dropped": dropped,
			"kept":    len(nodes),
		}).Warn("Dropped malformed dashboard entries")
	}

	if len(nodes) == 0 {
		return nil, errors.NewUpstreamUnavailableError("dashboard",
			fmt.Errorf("summary returned no usable nodes"))
	}

	return nodes, nil
}

func (c *DashboardClient) fetchSummaryBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to build dashboard request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewUpstreamTimeoutError("dashboard")
		}
		return nil, errors.NewUpstreamUnavailableError("dashboard", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewUpstreamUnavailableError("dashboard",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("dashboard", err)
	}

	return body, nil
}

// coerceNode converts one raw dashboard entry into the strict snapshot type
func coerceNode(r rawDashboardNode) (types.NodeSnapshot, bool) {
	if r.NodeID == nil || *r.NodeID == "" {
		return types.NodeSnapshot{}, false
	}

	node := types.NodeSnapshot{
		NodeID:                *r.NodeID,
		NodeName:              strOrEmpty(r.NodeName),
		Client:                strOrEmpty(r.Client),
		PeerType:              strOrEmpty(r.PeerType),
		UptimeMs:              int64OrZero(r.Uptime),
		PeersCount:            intOrZero(r.PeersCount),
		PeersList:             r.PeersList,
		AveragePing:           r.AveragePing,
		PacketsSent:           int64OrZero(r.PacketsSent),
		PacketsReceived:       int64OrZero(r.PacketsReceived),
		BandwidthIn:           int64OrZero(r.AverageBytesPerSecondIn),
		BandwidthOut:          int64OrZero(r.AverageBytesPerSecondOut),
		ConsensusRunning:      r.ConsensusRunning != nil && *r.ConsensusRunning,
		BakingCommitteeMember: strOrEmpty(r.BakingCommitteeMember),
		BestBlockHeight:       uint64OrZero(r.BestBlockHeight),
		FinalizedBlockHeight:  uint64OrZero(r.FinalizedBlockHeight),
	}

	if r.ConsensusBakerID != nil && *r.ConsensusBakerID >= 0 {
		id := uint64(*r.ConsensusBakerID)
		node.ConsensusBakerID = &id
	}

	if r.FinalizedTime != nil {
		if t, err := time.Parse(time.RFC3339, *r.FinalizedTime); err == nil {
			node.FinalizedTime = &t
		}
	}

	return node, true
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrZero(f *float64) int {
	if f == nil || *f < 0 {
		return 0
	}
	return int(*f)
}

func int64OrZero(f *float64) int64 {
	if f == nil || *f < 0 {
		return 0
	}
	return int64(*f)
}

func uint64OrZero(f *float64) uint64 {
	if f == nil || *f < 0 {
		return 0
	}
	return uint64(*f)
}
