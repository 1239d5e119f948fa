package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/h4x0r/concordium-node-map-sub002/internal/errors"
	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// ChainClient fetches finalized blocks and the validator registry from the
// node RPC. Requests are rate limited so a large catch-up range cannot
// hammer the node.
type ChainClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewChainClient creates a new chain RPC client
func NewChainClient(baseURL string, timeout time.Duration, requestsPerSecond float64) *ChainClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 20
	}
	return &ChainClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)),
	}
}

// BlockFetchError records a single block height that could not be fetched
// during a range fetch. These are surfaced as fetchErrors in job results.
type BlockFetchError struct {
	Height  uint64 `json:"height"`
	Message string `json:"message"`
}

type rawConsensusStatus struct {
	BestBlockHeight          *uint64 `json:"bestBlockHeight"`
	LastFinalizedBlockHeight *uint64 `json:"lastFinalizedBlockHeight"`
}

type rawBlock struct {
	BlockHeight      *uint64 `json:"blockHeight"`
	BlockHash        *string `json:"blockHash"`
	BlockBaker       *uint64 `json:"blockBaker"`
	BlockSlotTime    *string `json:"blockSlotTime"`
	TransactionCount *int    `json:"transactionCount"`
}

type rawValidator struct {
	BakerID          *uint64  `json:"bakerId"`
	AccountAddress   *string  `json:"bakerAccount"`
	EquityCapital    *string  `json:"bakerEquityCapital"`
	DelegatedCapital *string  `json:"delegatedCapital"`
	TotalStake       *string  `json:"effectiveStake"`
	LotteryPower     *float64 `json:"bakerLotteryPower"`
	InCurrentPayday  *bool    `json:"inCurrentPayday"`
}

// GetFinalizedHeight returns the chain's last finalized block height
func (c *ChainClient) GetFinalizedHeight(ctx context.Context) (uint64, error) {
	var status rawConsensusStatus
	if err := c.getJSON(ctx, "/v2/consensusStatus", &status); err != nil {
		return 0, err
	}
	if status.LastFinalizedBlockHeight == nil {
		return 0, errors.NewUpstreamUnavailableError("chain-rpc",
			fmt.Errorf("consensus status missing finalized height"))
	}
	return *status.LastFinalizedBlockHeight, nil
}

// GetBlocksInRange fetches finalized blocks for heights [from, to] inclusive.
// Individual heights that fail are collected as BlockFetchErrors and the rest
// of the range is still returned; the fetch as a whole fails only when every
// height fails.
func (c *ChainClient) GetBlocksInRange(ctx context.Context, from, to uint64) ([]types.ChainBlock, []BlockFetchError, error) {
	if to < from {
		return nil, nil, nil
	}

	blocks := make([]types.ChainBlock, 0, to-from+1)
	var fetchErrors []BlockFetchError

	for height := from; height <= to; height++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return blocks, fetchErrors, errors.NewUpstreamTimeoutError("chain-rpc")
		}

		block, err := c.getBlockAtHeight(ctx, height)
		if err != nil {
			fetchErrors = append(fetchErrors, BlockFetchError{
				Height:  height,
				Message: err.Error(),
			})
			continue
		}
		blocks = append(blocks, block)
	}

	if len(blocks) == 0 && len(fetchErrors) > 0 {
		return nil, fetchErrors, errors.NewUpstreamUnavailableError("chain-rpc",
			fmt.Errorf("all %d block fetches failed", len(fetchErrors)))
	}

	return blocks, fetchErrors, nil
}

// getBlockAtHeight fetches and coerces a single finalized block
func (c *ChainClient) getBlockAtHeight(ctx context.Context, height uint64) (types.ChainBlock, error) {
	var raw rawBlock
	path := fmt.Sprintf("/v2/blocks/height/%d", height)
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return types.ChainBlock{}, err
	}

	if raw.BlockHash == nil || *raw.BlockHash == "" || raw.BlockHeight == nil {
		return types.ChainBlock{}, fmt.Errorf("block at height %d missing hash or height", height)
	}

	block := types.ChainBlock{
		Height: *raw.BlockHeight,
		Hash:   *raw.BlockHash,
	}
	if raw.BlockBaker != nil {
		block.BakerID = *raw.BlockBaker
	}
	if raw.TransactionCount != nil && *raw.TransactionCount >= 0 {
		block.TransactionCount = *raw.TransactionCount
	}
	if raw.BlockSlotTime != nil {
		if t, err := time.Parse(time.RFC3339, *raw.BlockSlotTime); err == nil {
			block.Timestamp = t
		}
	}
	if block.Timestamp.IsZero() {
		block.Timestamp = time.Now().UTC()
	}

	return block, nil
}

// GetValidators fetches the current validator registry. Entries missing a
// baker ID are skipped and counted; the caller records the skip count as a
// partial-fetch condition.
func (c *ChainClient) GetValidators(ctx context.Context) ([]types.RegistryValidator, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, errors.NewUpstreamTimeoutError("chain-rpc")
	}

	var raw []rawValidator
	if err := c.getJSON(ctx, "/v2/bakers", &raw); err != nil {
		return nil, 0, err
	}

	validators := make([]types.RegistryValidator, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		if r.BakerID == nil {
			skipped++
			continue
		}
		v := types.RegistryValidator{
			BakerID:          *r.BakerID,
			AccountAddress:   strOrEmpty(r.AccountAddress),
			EquityCapital:    strOrDefault(r.EquityCapital, "0"),
			DelegatedCapital: strOrDefault(r.DelegatedCapital, "0"),
			TotalStake:       strOrDefault(r.TotalStake, "0"),
			InCurrentPayday:  r.InCurrentPayday != nil && *r.InCurrentPayday,
		}
		if r.LotteryPower != nil && *r.LotteryPower >= 0 {
			v.LotteryPower = *r.LotteryPower
		}
		validators = append(validators, v)
	}

	if len(validators) == 0 {
		return nil, skipped, errors.NewUpstreamUnavailableError("chain-rpc",
			fmt.Errorf("registry returned no usable validators"))
	}

	return validators, skipped, nil
}

// getJSON performs a GET request and decodes the JSON response
func (c *ChainClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.NewInternalError("failed to build chain RPC request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.NewUpstreamTimeoutError("chain-rpc")
		}
		return errors.NewUpstreamUnavailableError("chain-rpc", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewUpstreamUnavailableError("chain-rpc",
			fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewUpstreamUnavailableError("chain-rpc", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewUpstreamUnavailableError("chain-rpc",
			fmt.Errorf("malformed response for %s: %w", path, err))
	}

	return nil
}

func strOrDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
