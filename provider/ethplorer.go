package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	ethplorerEndpoint = "https://api.ethplorer.io"

	// ethereumChainID is the only chain Ethplorer serves.
	ethereumChainID = 1
)

// Ethplorer fetches ranked holders from the free Ethplorer API. It is
// the fallback source when Chainbase is unavailable or degraded, and it
// never sets degradation itself.
type Ethplorer struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewEthplorer returns the free-tier adapter. An empty apiKey selects
// the public "freekey" quota.
func NewEthplorer(apiKey string, timeout time.Duration) *Ethplorer {
	if apiKey == "" {
		apiKey = "freekey"
	}
	return &Ethplorer{
		apiKey:  apiKey,
		baseURL: ethplorerEndpoint,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Source.
func (e *Ethplorer) Name() string { return "ethplorer" }

type ethplorerHolder struct {
	Address string      `json:"address"`
	Balance json.Number `json:"balance"`
}

type ethplorerResponse struct {
	Holders []ethplorerHolder `json:"holders"`
}

// Fetch implements Source.
func (e *Ethplorer) Fetch(ctx context.Context, ref TokenRef) ([]Holder, error) {
	if ref.ChainID != ethereumChainID {
		return nil, fmt.Errorf("ethplorer serves ethereum only, not %s: %w", ref.Chain, ErrUnsupported)
	}

	q := url.Values{}
	q.Set("apiKey", e.apiKey)
	q.Set("limit", strconv.Itoa(pageLimit(ref.TopN)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.baseURL+"/getTopTokenHolders/"+ref.Address.Hex()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ethplorer request: %v: %w", err, ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("ethplorer status %d: %w", resp.StatusCode, ErrTransient)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ethplorer status %d", resp.StatusCode)
	}

	var parsed ethplorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ethplorer decode: %v: %w", err, ErrTransient)
	}
	if len(parsed.Holders) == 0 {
		return nil, ErrEmpty
	}

	addrs := make([]common.Address, 0, len(parsed.Holders))
	balances := make([]string, 0, len(parsed.Holders))
	for _, h := range parsed.Holders {
		addrs = append(addrs, common.HexToAddress(h.Address))
		balances = append(balances, h.Balance.String())
	}
	holders := rankHolders(addrs, balances, ref.TopN)
	if len(holders) == 0 {
		return nil, ErrEmpty
	}
	return holders, nil
}
