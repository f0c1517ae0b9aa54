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

package whale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/tos-network/whalewatch/holdercache"
	"github.com/tos-network/whalewatch/params"
	"github.com/tos-network/whalewatch/provider"
)

// Notifier delivers out-of-band system notices (degradation, hard
// failures) to the operator channel.
type Notifier func(text string)

// Engine refreshes the whale set of every monitored token on a wall
// clock schedule, choosing a source per token by freshness and
// degradation state:
//
//  1. the local cache, when younger than the freshness horizon
//  2. the primary provider, unless degraded for this token
//  3. the secondary provider (Ethereum mainnet only)
//  4. the local cache regardless of age
//
// Steps 2 and 3 write through to the cache; cache loads never do.
type Engine struct {
	idx       *Index
	store     *holdercache.Store
	primary   provider.Source // nil when no API key is configured
	secondary provider.Source
	tokens    []*TokenState

	interval time.Duration // per-token refresh period
	horizon  time.Duration // fresh-cache horizon; 0 disables step 1, <0 never expires
	notify   Notifier

	installs metrics.Counter
	failures metrics.Counter
}

// NewEngine wires a refresh engine over the shared index and store.
func NewEngine(idx *Index, store *holdercache.Store, primary, secondary provider.Source,
	tokens []*TokenState, interval, horizon time.Duration, notify Notifier) *Engine {
	return &Engine{
		idx:       idx,
		store:     store,
		primary:   primary,
		secondary: secondary,
		tokens:    tokens,
		interval:  interval,
		horizon:   horizon,
		notify:    notify,
		installs:  metrics.GetOrRegisterCounter("whalewatch/refresh/installs", nil),
		failures:  metrics.GetOrRegisterCounter("whalewatch/refresh/failures", nil),
	}
}

// Run drives the scheduler until ctx is cancelled. Each tick refreshes
// the tokens whose state is older than the refresh interval; a token
// that fails is not retried before the next tick.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(params.RefreshTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, ts := range e.tokens {
				if time.Since(ts.LastRefresh()) < e.interval {
					continue
				}
				if err := e.RefreshToken(ctx, ts); err != nil {
					e.failures.Inc(1)
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}
	}
}

// RefreshAll refreshes every token once, used at startup before the
// pollers begin consuming the index.
func (e *Engine) RefreshAll(ctx context.Context) {
	for _, ts := range e.tokens {
		if err := e.RefreshToken(ctx, ts); err != nil {
			e.failures.Inc(1)
		}
	}
}

// RefreshToken runs the ordered source policy for one token. On total
// failure the previously installed state is left intact.
func (e *Engine) RefreshToken(ctx context.Context, ts *TokenState) error {
	if ts.TopN <= 0 {
		e.idx.Install(ts, nil, "none")
		return nil
	}
	ref := provider.TokenRef{Chain: ts.Chain, ChainID: ts.ChainID, Address: ts.Address, TopN: ts.TopN}

	// Prefer a cached document still inside the freshness horizon; it is
	// installed as-is and never written back.
	if e.horizon != 0 {
		if holders, age, ok := e.loadFreshCache(ctx, ref); ok {
			e.install(ts, holders, "cache")
			log.Info("Whale set loaded from fresh cache", "token", ts.Symbol, "chain", ts.Chain,
				"whales", len(holders), "age", humanDuration(age))
			return nil
		}
	}

	if e.primary != nil && !ts.degraded[e.primary.Name()] {
		holders, err := e.primary.Fetch(ctx, ref)
		switch {
		case err == nil:
			e.install(ts, holders, e.primary.Name())
			e.writeThrough(ts, holders, e.primary.Name())
			log.Info("Whale set updated", "token", ts.Symbol, "chain", ts.Chain,
				"source", e.primary.Name(), "whales", len(holders))
			return nil
		case errors.Is(err, provider.ErrRateLimited):
			e.degrade(ts, e.primary.Name(), err)
		default:
			log.Warn("Primary holder source failed", "token", ts.Symbol, "source", e.primary.Name(), "err", err)
		}
	}

	if e.secondary != nil {
		holders, err := e.secondary.Fetch(ctx, ref)
		switch {
		case err == nil:
			e.install(ts, holders, e.secondary.Name())
			e.writeThrough(ts, holders, e.secondary.Name())
			log.Info("Whale set updated", "token", ts.Symbol, "chain", ts.Chain,
				"source", e.secondary.Name(), "whales", len(holders))
			return nil
		case errors.Is(err, provider.ErrUnsupported):
			// Nothing to log, the fallback simply cannot serve this chain.
		default:
			log.Warn("Secondary holder source failed", "token", ts.Symbol, "source", e.secondary.Name(), "err", err)
		}
	}

	// Last resort: whatever the cache has, however old.
	backup := &provider.CacheSource{Store: e.store}
	if holders, err := backup.Fetch(ctx, ref); err == nil {
		age := e.cacheAge(ts)
		e.install(ts, holders, "cache")
		log.Warn("Whale set restored from stale cache", "token", ts.Symbol, "chain", ts.Chain,
			"whales", len(holders), "age", humanDuration(age))
		return nil
	}

	log.Error("All holder sources failed, keeping previous whale set",
		"token", ts.Symbol, "chain", ts.Chain, "whales", e.idx.WhaleCount(ts))
	return fmt.Errorf("no holder source available for %s on %s", ts.Symbol, ts.Chain)
}

func (e *Engine) install(ts *TokenState, holders []provider.Holder, source string) {
	e.idx.Install(ts, holders, source)
	e.installs.Inc(1)
}

// loadFreshCache checks document age via Metadata before deserializing
// the holder list, so an expired document costs one header read.
func (e *Engine) loadFreshCache(ctx context.Context, ref provider.TokenRef) ([]provider.Holder, time.Duration, bool) {
	meta, ok := e.store.Metadata(ref.ChainID, ref.Address)
	if !ok {
		return nil, 0, false
	}
	age := time.Duration(float64(time.Second) * (float64(time.Now().UnixNano())/float64(time.Second) - meta.UpdatedAt))
	if e.horizon > 0 && age > e.horizon {
		return nil, 0, false
	}
	src := &provider.CacheSource{Store: e.store}
	holders, err := src.Fetch(ctx, ref)
	if err != nil {
		return nil, 0, false
	}
	return holders, age, true
}

func (e *Engine) cacheAge(ts *TokenState) time.Duration {
	meta, ok := e.store.Metadata(ts.ChainID, ts.Address)
	if !ok {
		return 0
	}
	return time.Duration(float64(time.Second) * (float64(time.Now().UnixNano())/float64(time.Second) - meta.UpdatedAt))
}

func (e *Engine) writeThrough(ts *TokenState, holders []provider.Holder, source string) {
	cached := make([]holdercache.Holder, len(holders))
	for i, h := range holders {
		cached[i] = holdercache.Holder{Address: h.Address.Hex(), Rank: h.Rank, Balance: h.Balance}
	}
	if !e.store.Save(ts.ChainID, ts.Address, cached, ts.Symbol, source, ts.Decimals) {
		log.Warn("Holder cache write-through failed", "token", ts.Symbol, "chain", ts.Chain)
	}
}

// degrade disables source for ts until the process restarts and raises a
// system notice.
func (e *Engine) degrade(ts *TokenState, source string, cause error) {
	if ts.degraded[source] {
		return
	}
	ts.degraded[source] = true
	log.Warn("Holder source degraded for token", "token", ts.Symbol, "chain", ts.Chain,
		"source", source, "err", cause)
	if e.notify != nil {
		e.notify(fmt.Sprintf("⚠️ *Degraded mode*\nToken: `%s` (%s)\nSource `%s` disabled: %v\nFalling through to backup sources.",
			ts.Symbol, ts.Chain, source, cause))
	}
}

// humanDuration renders an age the way an operator reads it, not the way
// time.Duration prints it.
func humanDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}
