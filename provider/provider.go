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

// Package provider exposes a uniform capability over the heterogeneous
// ranked-holder upstreams: the paid Chainbase API, the free Ethplorer
// API and the local holder cache. Every adapter returns a ranked holder
// list or a typed failure the refresh engine can branch on.
package provider

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tos-network/whalewatch/params"
)

// Failure taxonomy. Adapters wrap these sentinels so callers can use
// errors.Is without knowing transport details.
var (
	// ErrRateLimited signals an upstream quota hit (HTTP 429). The refresh
	// engine degrades the source for the rest of the process lifetime.
	ErrRateLimited = errors.New("holder provider rate limited")

	// ErrTransient covers network failures and 5xx answers; the adapter's
	// retry loop has already been exhausted when a caller sees it.
	ErrTransient = errors.New("transient holder provider failure")

	// ErrEmpty means the upstream answered successfully with zero rows.
	ErrEmpty = errors.New("holder provider returned no holders")

	// ErrUnsupported means the adapter cannot serve the requested chain.
	ErrUnsupported = errors.New("chain not supported by holder provider")

	// ErrCacheMiss is ordinary control flow: no usable cached document.
	ErrCacheMiss = errors.New("no cached holder set")
)

// TokenRef identifies a token to fetch holders for.
type TokenRef struct {
	Chain   string
	ChainID uint64
	Address common.Address
	TopN    int
}

// Holder is one ranked holder entry. Rank starts at 1 after ignore-list
// filtering; Balance carries the raw token units as reported upstream.
type Holder struct {
	Address common.Address
	Rank    int
	Balance string
}

// Source is the capability every holder upstream implements.
type Source interface {
	// Name tags the provenance of a fetched set ("chainbase", "ethplorer",
	// "cache").
	Name() string

	// Fetch returns the ranked holder list for ref, filtered of ignore-list
	// addresses and truncated to ref.TopN, or a typed failure.
	Fetch(ctx context.Context, ref TokenRef) ([]Holder, error)
}

// rankHolders assigns ranks in upstream order, dropping ignore-list
// addresses before ranking and cutting the list at topN.
func rankHolders(addrs []common.Address, balances []string, topN int) []Holder {
	out := make([]Holder, 0, topN)
	rank := 1
	for i, addr := range addrs {
		if params.IgnoreList[addr] {
			continue
		}
		if rank > topN {
			break
		}
		out = append(out, Holder{Address: addr, Rank: rank, Balance: balances[i]})
		rank++
	}
	return out
}
