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

package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"golang.org/x/sync/errgroup"

	"github.com/tos-network/whalewatch/alert"
	"github.com/tos-network/whalewatch/chains"
	"github.com/tos-network/whalewatch/config"
	"github.com/tos-network/whalewatch/dedup"
	"github.com/tos-network/whalewatch/holdercache"
	"github.com/tos-network/whalewatch/params"
	"github.com/tos-network/whalewatch/price"
	"github.com/tos-network/whalewatch/provider"
	"github.com/tos-network/whalewatch/whale"
)

// Supervisor owns the monitor's shared state and runs every long-lived
// loop under one errgroup: the refresh engine, the price refresher, the
// status reporter and one poller per reachable chain.
type Supervisor struct {
	cfg  *config.Config
	sink alert.Sink
	idx  *whale.Index
	seen *dedup.Set

	tokens    []*whale.TokenState
	byChain   map[string][]*whale.TokenState
	startedAt time.Time
}

// NewSupervisor builds a supervisor from a validated configuration.
func NewSupervisor(cfg *config.Config) (*Supervisor, error) {
	seen, err := dedup.NewSet(cfg.TxCacheSize)
	if err != nil {
		return nil, err
	}
	var sink alert.Sink
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		sink = alert.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, cfg.HTTPTimeout)
	} else {
		log.Warn("Telegram credentials not configured, alerts go to the log only")
		sink = alert.LogSink{}
	}
	return &Supervisor{
		cfg:     cfg,
		sink:    sink,
		idx:     whale.NewIndex(),
		seen:    seen,
		byChain: make(map[string][]*whale.TokenState),
	}, nil
}

// Run executes the startup sequence and then blocks until ctx is
// cancelled or a loop fails: dial the chains, resolve token metadata,
// install the initial whale sets and prices, then start the loops.
func (s *Supervisor) Run(ctx context.Context) error {
	s.startedAt = time.Now()

	grouped := s.cfg.TokensByChain()
	needed := make([]string, 0, len(grouped))
	for chain := range grouped {
		needed = append(needed, chain)
	}
	pool, err := chains.NewPool(ctx, s.cfg.Chains, needed, s.cfg.RPCTimeout)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := s.resolveTokens(ctx, pool, grouped); err != nil {
		return err
	}

	store, err := holdercache.New(s.cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("holder cache: %w", err)
	}

	var primary provider.Source
	if s.cfg.ChainbaseKey != "" {
		primary = provider.NewChainbase(s.cfg.ChainbaseKey, s.cfg.HTTPTimeout,
			provider.Policy{MaxRetries: s.cfg.MaxRetries, BaseDelay: s.cfg.BaseRetryDelay})
	} else {
		log.Warn("No Chainbase API key, relying on fallback holder sources")
	}
	secondary := provider.NewEthplorer("freekey", s.cfg.HTTPTimeout)

	engine := whale.NewEngine(s.idx, store, primary, secondary, s.tokens,
		s.cfg.WhaleRefreshInterval, s.cfg.CacheMaxAge, s.notice)
	engine.RefreshAll(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	prices := price.NewClient(s.cfg.HTTPTimeout)
	prices.RefreshAll(ctx, s.tokens)

	s.notice(s.startupText())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return s.priceLoop(gctx, prices) })
	g.Go(func() error { return s.statusLoop(gctx) })
	for chain, tokens := range s.byChain {
		client, ok := pool.Client(chain)
		if !ok {
			continue
		}
		poller := NewPoller(PollerConfig{
			Chain:          chain,
			Start:          pool.Head(chain),
			Interval:       s.cfg.BlockPollInterval,
			RPCTimeout:     s.cfg.RPCTimeout,
			MaxConsecutive: s.cfg.MaxConsecutiveErrors,
		}, client, s.idx, tokens, s.seen, s.sink, s.notice)
		g.Go(func() error { return poller.Run(gctx) })
	}

	err = g.Wait()
	s.notice(fmt.Sprintf("🛑 *Whale watch stopped*\nUptime: %s", humanUptime(time.Since(s.startedAt))))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// resolveTokens builds the runtime token states, reading symbol and
// decimals over RPC. Tokens on unreachable chains or with unreadable
// metadata are dropped with a warning rather than failing startup.
func (s *Supervisor) resolveTokens(ctx context.Context, pool *chains.Pool, grouped map[string][]config.TokenSpec) error {
	for chain, specs := range grouped {
		client, ok := pool.Client(chain)
		if !ok {
			log.Warn("Dropping tokens on unreachable chain", "chain", chain, "tokens", len(specs))
			continue
		}
		desc := s.cfg.Chains[chain]
		for _, spec := range specs {
			cctx, cancel := context.WithTimeout(ctx, s.cfg.RPCTimeout)
			symbol, decimals, err := chains.TokenMetadata(cctx, client, spec.Address)
			cancel()
			if err != nil {
				log.Warn("Token metadata unreadable, dropping token", "chain", chain,
					"token", spec.Address.Hex(), "err", err)
				continue
			}
			ts := whale.NewTokenState(spec.Address, chain, desc.ChainID, spec.TopN, spec.ThresholdUSD)
			ts.ChainName = desc.Name
			ts.Explorer = desc.Explorer
			ts.PricePrefix = desc.PricePrefix
			ts.Symbol = symbol
			ts.Decimals = decimals
			s.tokens = append(s.tokens, ts)
			s.byChain[chain] = append(s.byChain[chain], ts)
			log.Info("Token resolved", "chain", chain, "token", symbol,
				"decimals", decimals, "topn", spec.TopN, "threshold", fmt.Sprintf("$%.0f", spec.ThresholdUSD))
		}
	}
	if len(s.tokens) == 0 {
		return fmt.Errorf("no monitorable tokens after startup checks")
	}
	return nil
}

func (s *Supervisor) priceLoop(ctx context.Context, prices *price.Client) error {
	ticker := time.NewTicker(s.cfg.PriceRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			prices.RefreshAll(ctx, s.tokens)
		}
	}
}

// statusLoop periodically logs a one-line operational summary.
func (s *Supervisor) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.StatusPrintInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			log.Info("Status",
				"uptime", humanUptime(time.Since(s.startedAt)),
				"tokens", len(s.tokens),
				"whales", s.idx.Size(),
				"logs", counterValue("whalewatch/monitor/logs"),
				"hits", counterValue("whalewatch/monitor/hits"),
				"alerts", counterValue("whalewatch/monitor/alerts"),
				"duplicates", counterValue("whalewatch/monitor/duplicates"),
				"window", s.seen.Len())
		}
	}
}

// counterValue reads a registered counter through its snapshot, the only
// read path the metrics interface exposes.
func counterValue(name string) int64 {
	return metrics.GetOrRegisterCounter(name, nil).Snapshot().Count()
}

// notice delivers an out-of-band system message on its own deadline so a
// slow sink cannot stall the caller's loop.
func (s *Supervisor) notice(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTPTimeout)
	defer cancel()
	if err := s.sink.Send(ctx, text); err != nil {
		log.Warn("System notice delivery failed", "err", err)
	}
}

func (s *Supervisor) startupText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🐳 *Whale watch started* (v%s)\n", params.Version)
	fmt.Fprintf(&b, "Monitoring %d token(s) on %d chain(s):\n", len(s.tokens), len(s.byChain))
	for _, ts := range s.tokens {
		fmt.Fprintf(&b, "• `%s` on %s — top %d holders, threshold $%.0f, %d whales\n",
			ts.Symbol, ts.ChainName, ts.TopN, ts.ThresholdUSD, s.idx.WhaleCount(ts))
	}
	return b.String()
}

func humanUptime(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= 24*time.Hour {
		days := d / (24 * time.Hour)
		return fmt.Sprintf("%dd%s", days, (d % (24 * time.Hour)).String())
	}
	return d.String()
}
