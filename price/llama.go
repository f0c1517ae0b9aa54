// Package price fetches spot prices from the DeFiLlama coins API. One
// request covers every monitored token; tokens missing from the answer
// keep their previous price.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/tos-network/whalewatch/whale"
)

const llamaEndpoint = "https://coins.llama.fi"

// Client is the batched spot-price fetcher.
type Client struct {
	baseURL string
	client  *http.Client
	errors  metrics.Counter
}

// NewClient returns a price client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		baseURL: llamaEndpoint,
		client:  &http.Client{Timeout: timeout},
		errors:  metrics.GetOrRegisterCounter("whalewatch/price/errors", nil),
	}
}

type llamaCoin struct {
	Price float64 `json:"price"`
}

type llamaResponse struct {
	Coins map[string]llamaCoin `json:"coins"`
}

// coinKey is the DeFiLlama identifier of a token: "<chain-prefix>:<address>".
func coinKey(ts *whale.TokenState) string {
	return ts.PricePrefix + ":" + ts.Address.Hex()
}

// RefreshAll updates the price of every token found in one batched
// response and returns how many were updated. A whole-request failure
// counts one error and updates nothing; there are no per-token retries.
func (c *Client) RefreshAll(ctx context.Context, tokens []*whale.TokenState) int {
	if len(tokens) == 0 {
		return 0
	}
	keys := make([]string, len(tokens))
	for i, ts := range tokens {
		keys[i] = coinKey(ts)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/prices/current/"+strings.Join(keys, ","), nil)
	if err != nil {
		c.errors.Inc(1)
		return 0
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn("Price refresh failed", "err", err)
		c.errors.Inc(1)
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn("Price refresh failed", "status", resp.StatusCode)
		c.errors.Inc(1)
		return 0
	}

	var parsed llamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Warn("Price response decode failed", "err", err)
		c.errors.Inc(1)
		return 0
	}

	now := time.Now()
	updated := 0
	for _, ts := range tokens {
		coin, ok := parsed.Coins[coinKey(ts)]
		if !ok {
			continue
		}
		if old := ts.Price(); old != coin.Price {
			log.Debug("Price updated", "token", ts.Symbol, "price", fmt.Sprintf("$%.8f", coin.Price))
		}
		ts.SetPrice(coin.Price, now)
		updated++
	}
	return updated
}
