package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/tos-network/whalewatch/params"
)

const chainbaseEndpoint = "https://api.chainbase.online"

// Chainbase fetches ranked holders from the paid Chainbase top-holders
// endpoint. Requests are rate limited client side; transient failures are
// retried with exponential backoff before surfacing.
type Chainbase struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   Policy
}

// NewChainbase returns an adapter using apiKey. The free Chainbase tier
// allows ~2 requests per second; the limiter keeps bursts under that.
func NewChainbase(apiKey string, timeout time.Duration, retry Policy) *Chainbase {
	return &Chainbase{
		apiKey:  apiKey,
		baseURL: chainbaseEndpoint,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
		retry:   retry,
	}
}

// Name implements Source.
func (c *Chainbase) Name() string { return "chainbase" }

type chainbaseRow struct {
	WalletAddress  string      `json:"wallet_address"`
	Address        string      `json:"address"`
	OriginalAmount json.Number `json:"original_amount"`
	Amount         json.Number `json:"amount"`
}

type chainbaseResponse struct {
	Data []chainbaseRow `json:"data"`
}

// Fetch implements Source.
func (c *Chainbase) Fetch(ctx context.Context, ref TokenRef) ([]Holder, error) {
	var holders []Holder
	err := Do(ctx, c.retry, "chainbase top-holders", func() error {
		var err error
		holders, err = c.fetchOnce(ctx, ref)
		return err
	})
	return holders, err
}

func (c *Chainbase) fetchOnce(ctx context.Context, ref TokenRef) ([]Holder, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("chain_id", strconv.FormatUint(ref.ChainID, 10))
	q.Set("contract_address", strings.ToLower(ref.Address.Hex()))
	q.Set("page", "1")
	q.Set("limit", strconv.Itoa(pageLimit(ref.TopN)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/token/top-holders?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chainbase request: %v: %w", err, ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("chainbase status %d: %w", resp.StatusCode, ErrTransient)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("chainbase status %d: %s", resp.StatusCode, body)
	}

	var parsed chainbaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("chainbase decode: %v: %w", err, ErrTransient)
	}
	if len(parsed.Data) == 0 {
		return nil, ErrEmpty
	}

	addrs := make([]common.Address, 0, len(parsed.Data))
	balances := make([]string, 0, len(parsed.Data))
	for _, row := range parsed.Data {
		hex := row.WalletAddress
		if hex == "" {
			hex = row.Address
		}
		amount := row.OriginalAmount
		if amount == "" {
			amount = row.Amount
		}
		addrs = append(addrs, common.HexToAddress(hex))
		balances = append(balances, amount.String())
	}
	holders := rankHolders(addrs, balances, ref.TopN)
	if len(holders) == 0 {
		return nil, ErrEmpty
	}
	return holders, nil
}

// pageLimit asks for a few rows beyond topN so that ignore-list drops do
// not shrink the ranked set, clamped to the provider page maximum.
func pageLimit(topN int) int {
	limit := topN + 10
	if limit > params.ProviderPageMax {
		limit = params.ProviderPageMax
	}
	return limit
}
