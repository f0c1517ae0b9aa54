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

// Package monitor runs the per-chain Transfer pollers and the supervisor
// that wires them to the whale index, the refresh engine and the alert
// sink.
package monitor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/tos-network/whalewatch/alert"
	"github.com/tos-network/whalewatch/dedup"
	"github.com/tos-network/whalewatch/params"
	"github.com/tos-network/whalewatch/whale"
)

// LogSource is the slice of the RPC client a poller consumes, satisfied
// by ethclient.Client.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// PollerConfig carries the static parameters of one chain poller.
type PollerConfig struct {
	Chain          string
	Start          uint64 // head recorded at startup; polling begins above it
	Interval       time.Duration
	RPCTimeout     time.Duration
	MaxConsecutive int
}

// Poller scans one chain for Transfer logs of its monitored tokens and
// classifies every whale hit. Block ranges are advanced only after a
// fully processed batch, so an RPC failure replays the same range on the
// next tick rather than skipping it.
type Poller struct {
	cfg    PollerConfig
	src    LogSource
	idx    *whale.Index
	tokens map[common.Address]*whale.TokenState
	addrs  []common.Address
	seen   *dedup.Set
	sink   alert.Sink
	notify whale.Notifier

	lastBlock    uint64
	consecutive  int
	lastProgress time.Time

	scanned metrics.Counter
	hits    metrics.Counter
	alerts  metrics.Counter
	dupes   metrics.Counter
	errors  metrics.Counter
}

// NewPoller builds a poller over the given token set. All tokens must
// belong to cfg.Chain.
func NewPoller(cfg PollerConfig, src LogSource, idx *whale.Index, tokens []*whale.TokenState,
	seen *dedup.Set, sink alert.Sink, notify whale.Notifier) *Poller {
	p := &Poller{
		cfg:          cfg,
		src:          src,
		idx:          idx,
		tokens:       make(map[common.Address]*whale.TokenState, len(tokens)),
		seen:         seen,
		sink:         sink,
		notify:       notify,
		lastBlock:    cfg.Start,
		lastProgress: time.Now(),
		scanned:      metrics.GetOrRegisterCounter("whalewatch/monitor/logs", nil),
		hits:         metrics.GetOrRegisterCounter("whalewatch/monitor/hits", nil),
		alerts:       metrics.GetOrRegisterCounter("whalewatch/monitor/alerts", nil),
		dupes:        metrics.GetOrRegisterCounter("whalewatch/monitor/duplicates", nil),
		errors:       metrics.GetOrRegisterCounter("whalewatch/monitor/errors", nil),
	}
	for _, ts := range tokens {
		p.tokens[ts.Address] = ts
		p.addrs = append(p.addrs, ts.Address)
	}
	return p
}

// Run drives the poll loop until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	log.Info("Poller started", "chain", p.cfg.Chain, "tokens", len(p.tokens), "from", p.lastBlock)
	heartbeat := time.NewTicker(params.HeartbeatInterval)
	defer heartbeat.Stop()
	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-heartbeat.C:
			p.beat()
		case <-timer.C:
			timer.Reset(p.tick(ctx))
		}
	}
}

// beat reports liveness and warns when the chain has made no progress
// for longer than the stale horizon.
func (p *Poller) beat() {
	stalled := time.Since(p.lastProgress)
	if stalled > params.StaleChainAfter {
		log.Warn("Chain has not advanced", "chain", p.cfg.Chain, "block", p.lastBlock,
			"stalled", stalled.Round(time.Second))
		return
	}
	log.Info("Poller heartbeat", "chain", p.cfg.Chain, "block", p.lastBlock)
}

// tick scans one block range and returns the delay before the next one.
func (p *Poller) tick(ctx context.Context) time.Duration {
	if err := p.scan(ctx); err != nil {
		if ctx.Err() != nil {
			return p.cfg.Interval
		}
		p.errors.Inc(1)
		p.consecutive++
		log.Warn("Chain poll failed", "chain", p.cfg.Chain, "attempt", p.consecutive, "err", err)
		if p.consecutive >= p.cfg.MaxConsecutive {
			log.Error("Chain poll failing persistently, backing off", "chain", p.cfg.Chain,
				"failures", p.consecutive)
			if p.notify != nil {
				p.notify(fmt.Sprintf("⚠️ *Chain trouble*\nChain `%s` failed %d polls in a row, pausing for a minute.",
					p.cfg.Chain, p.consecutive))
			}
			p.consecutive = 0
			return time.Minute
		}
		// Linear backoff, capped.
		delay := time.Duration(p.consecutive) * 5 * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		return delay
	}
	p.consecutive = 0
	return p.cfg.Interval
}

// scan fetches the Transfer logs between the last processed block and
// the current head and classifies each one. lastBlock advances only when
// the whole range succeeded.
func (p *Poller) scan(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.RPCTimeout)
	head, err := p.src.BlockNumber(cctx)
	cancel()
	if err != nil {
		return fmt.Errorf("head: %w", err)
	}
	// An unchanged head is a successful poll but not chain progress; the
	// stale-chain warning keys off lastProgress, so it must not refresh
	// here or a halted chain behind a healthy RPC would look live forever.
	if head <= p.lastBlock {
		return nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(p.lastBlock + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: p.addrs,
		Topics:    [][]common.Hash{{params.TransferTopic}},
	}
	cctx, cancel = context.WithTimeout(ctx, p.cfg.RPCTimeout)
	logs, err := p.src.FilterLogs(cctx, query)
	cancel()
	if err != nil {
		return fmt.Errorf("filter logs %d-%d: %w", p.lastBlock+1, head, err)
	}

	for _, lg := range logs {
		p.classify(ctx, lg)
	}
	p.scanned.Inc(int64(len(logs)))
	p.lastBlock = head
	p.lastProgress = time.Now()
	return nil
}

// classify runs one Transfer log through the whale pipeline: dedup,
// index lookup, direction, USD gate, alert. Non-whale and malformed
// logs fall out without touching the dedup window.
func (p *Poller) classify(ctx context.Context, lg types.Log) {
	ts, ok := p.tokens[lg.Address]
	if !ok {
		return
	}
	// Indexed from/to plus the event signature; anything else is not an
	// ERC-20 Transfer even though the topic matched.
	if lg.Removed || len(lg.Topics) != 3 || len(lg.Data) < 32 {
		return
	}

	key := fmt.Sprintf("%s:%s:%d", p.cfg.Chain, lg.TxHash.Hex(), lg.Index)
	if p.seen.Contains(key) {
		p.dupes.Inc(1)
		return
	}

	from := common.BytesToAddress(lg.Topics[1].Bytes())
	to := common.BytesToAddress(lg.Topics[2].Bytes())

	whaleAddr, rank, fromIsWhale, hit := p.idx.Hit(ts.Address, from, to)
	if !hit {
		return
	}
	p.hits.Inc(1)

	var kind alert.Kind
	if fromIsWhale {
		if to == params.ZeroAddress || to == params.DeadAddress {
			kind = alert.KindBurn
		} else {
			kind = alert.KindSell
		}
	} else {
		if from == params.ZeroAddress {
			kind = alert.KindMint
		} else {
			kind = alert.KindBuy
		}
	}

	raw := new(big.Int).SetBytes(lg.Data[:32])
	amount := new(big.Float).Quo(new(big.Float).SetInt(raw), pow10(ts.Decimals))
	amountF, _ := amount.Float64()
	priceUSD := ts.Price()
	usd := amountF * priceUSD

	if usd >= ts.ThresholdUSD {
		rec := alert.Record{
			Token:     ts.Address,
			Symbol:    ts.Symbol,
			Chain:     ts.Chain,
			ChainName: ts.ChainName,
			Explorer:  ts.Explorer,
			Whale:     whaleAddr,
			Rank:      rank,
			Kind:      kind,
			Amount:    amount,
			USDValue:  usd,
			Price:     priceUSD,
			TxHash:    lg.TxHash,
			Block:     lg.BlockNumber,
		}
		if err := p.sink.Send(ctx, alert.Format(rec)); err != nil {
			log.Warn("Alert delivery failed", "chain", p.cfg.Chain, "token", ts.Symbol, "err", err)
		}
		p.alerts.Inc(1)
		log.Info("Whale transfer", "chain", p.cfg.Chain, "token", ts.Symbol, "kind", kind,
			"rank", rank, "amount", alert.FormatAmount(amount), "usd", fmt.Sprintf("$%.2f", usd),
			"tx", lg.TxHash)
	} else {
		log.Debug("Whale transfer below threshold", "chain", p.cfg.Chain, "token", ts.Symbol,
			"kind", kind, "rank", rank, "usd", fmt.Sprintf("$%.2f", usd))
	}

	// Every whale hit enters the window, alerted or not, so a reorged log
	// cannot fire twice at either side of the threshold.
	p.seen.Add(key)
}

func pow10(decimals uint8) *big.Float {
	return new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}
