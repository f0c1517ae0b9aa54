// Copyright 2025 The whalewatch Authors
// This file is part of the whalewatch library.
//
// The whalewatch library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The whalewatch library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the whalewatch library. If not, see <http://www.gnu.org/licenses/>.

// Package whale maintains the per-token whale sets and the global
// address→token→rank index shared between the refresh engine (writer)
// and the log pollers (readers).
package whale

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HolderDetail is the per-whale ranking record of one token.
type HolderDetail struct {
	Rank    int
	Balance string
}

// TokenState is the mutable runtime record of one monitored token.
//
// Identity fields are immutable after construction. Ranking fields
// (whitelist, details, source, lastRefresh) are written only by the
// refresh engine inside the Index critical section. Price fields are
// written only by the price client and read lock-free.
type TokenState struct {
	Address      common.Address
	Chain        string // chain key, e.g. "ethereum"
	ChainID      uint64
	ChainName    string // display name, e.g. "BNB Chain"
	Explorer     string // block explorer base URL
	PricePrefix  string // DeFiLlama coin key prefix
	TopN         int
	ThresholdUSD float64

	// Fetched once at startup via eth_call.
	Symbol   string
	Decimals uint8

	priceBits atomic.Uint64
	priceAt   atomic.Int64

	whitelist   map[common.Address]struct{}
	details     map[common.Address]HolderDetail
	source      string
	lastRefresh time.Time

	// degraded marks upstreams disabled for the process lifetime,
	// keyed by source name. Touched only by the refresh engine.
	degraded map[string]bool
}

// NewTokenState returns a TokenState with empty ranking state.
func NewTokenState(addr common.Address, chain string, chainID uint64, topN int, thresholdUSD float64) *TokenState {
	return &TokenState{
		Address:      addr,
		Chain:        chain,
		ChainID:      chainID,
		TopN:         topN,
		ThresholdUSD: thresholdUSD,
		Symbol:       "UNKNOWN",
		Decimals:     18,
		whitelist:    make(map[common.Address]struct{}),
		details:      make(map[common.Address]HolderDetail),
		degraded:     make(map[string]bool),
	}
}

// Price returns the latest spot price, zero until the first successful
// oracle fetch.
func (ts *TokenState) Price() float64 {
	return math.Float64frombits(ts.priceBits.Load())
}

// SetPrice records a new spot price and its observation time.
func (ts *TokenState) SetPrice(price float64, at time.Time) {
	ts.priceBits.Store(math.Float64bits(price))
	ts.priceAt.Store(at.UnixNano())
}

// PriceUpdatedAt returns when the price was last refreshed, or the zero
// time if it never was.
func (ts *TokenState) PriceUpdatedAt() time.Time {
	ns := ts.priceAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Source returns the provenance tag of the last successful refresh.
func (ts *TokenState) Source() string { return ts.source }

// LastRefresh returns when the ranking state was last installed.
func (ts *TokenState) LastRefresh() time.Time { return ts.lastRefresh }

// Degraded reports whether the named upstream is disabled for this token.
func (ts *TokenState) Degraded(source string) bool { return ts.degraded[source] }
