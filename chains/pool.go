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

// Package chains owns the JSON-RPC client per configured chain and the
// startup health check against each endpoint.
package chains

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/tos-network/whalewatch/config"
)

// Pool holds one validated RPC client per reachable chain.
type Pool struct {
	clients map[string]*ethclient.Client
	heads   map[string]uint64
	timeout time.Duration
}

// NewPool dials every chain in needed, verifies its chain id against the
// descriptor and records the current head. Unreachable chains are logged
// and skipped; the pool only fails when no chain at all is reachable.
func NewPool(ctx context.Context, descs map[string]config.ChainDescriptor, needed []string, timeout time.Duration) (*Pool, error) {
	p := &Pool{
		clients: make(map[string]*ethclient.Client),
		heads:   make(map[string]uint64),
		timeout: timeout,
	}
	for _, name := range needed {
		desc, ok := descs[name]
		if !ok {
			log.Error("Chain has no descriptor, skipping", "chain", name)
			continue
		}
		client, head, err := dial(ctx, name, desc, timeout)
		if err != nil {
			log.Error("Chain unreachable, skipping", "chain", name, "rpc", config.MaskURL(desc.RPCURL), "err", err)
			continue
		}
		p.clients[name] = client
		p.heads[name] = head
	}
	if len(p.clients) == 0 {
		return nil, fmt.Errorf("no configured chain is reachable")
	}
	return p, nil
}

func dial(ctx context.Context, name string, desc config.ChainDescriptor, timeout time.Duration) (*ethclient.Client, uint64, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ethclient.DialContext(dctx, desc.RPCURL)
	if err != nil {
		return nil, 0, fmt.Errorf("dial: %w", err)
	}
	chainID, err := client.ChainID(dctx)
	if err != nil {
		client.Close()
		return nil, 0, fmt.Errorf("chain_id: %w", err)
	}
	if chainID.Uint64() != desc.ChainID {
		log.Warn("RPC chain id does not match descriptor", "chain", name,
			"descriptor", desc.ChainID, "rpc", chainID)
	}
	head, err := client.BlockNumber(dctx)
	if err != nil {
		client.Close()
		return nil, 0, fmt.Errorf("block_number: %w", err)
	}
	log.Info("Chain connected", "chain", name, "chainid", chainID, "head", head)
	return client, head, nil
}

// Client returns the RPC client for chain, if it is reachable.
func (p *Pool) Client(chain string) (*ethclient.Client, bool) {
	c, ok := p.clients[chain]
	return c, ok
}

// Head returns the block height recorded during the startup check.
func (p *Pool) Head(chain string) uint64 {
	return p.heads[chain]
}

// Chains lists the reachable chains.
func (p *Pool) Chains() []string {
	out := make([]string, 0, len(p.clients))
	for name := range p.clients {
		out = append(out, name)
	}
	return out
}

// Close releases every client.
func (p *Pool) Close() {
	for _, c := range p.clients {
		c.Close()
	}
}
