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

// Package holdercache persists ranked holder sets on disk, one JSON
// document per (chain, token). Documents survive restarts and act as the
// last-resort holder source when every upstream is down.
package holdercache

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Holder is one ranked entry of a cached holder set. Balance keeps the
// raw token units as a decimal string; ReadableBalance is derived from it
// with the token's decimals and exists for human inspection only.
type Holder struct {
	Address         string  `json:"address"`
	Rank            int     `json:"rank"`
	Balance         string  `json:"balance"`
	ReadableBalance float64 `json:"readableBalance"`
}

// Document is the on-disk shape of a cached holder set.
type Document struct {
	TokenAddress string   `json:"token_address"`
	ChainID      uint64   `json:"chain_id,omitempty"`
	Symbol       string   `json:"symbol"`
	Decimals     uint8    `json:"decimals"`
	UpdatedAt    float64  `json:"updated_at"`
	UpdatedAtStr string   `json:"updated_at_str"`
	Source       string   `json:"source"`
	HoldersCount int      `json:"holders_count"`
	Holders      []Holder `json:"holders"`
}

// Metadata is the cheap header view of a document, used to distinguish
// "no cache" from "expired cache" without deserializing the holder list
// into the caller's state.
type Metadata struct {
	TokenAddress string
	Symbol       string
	UpdatedAt    float64
	Source       string
	Count        int
}

// Store is a crash-safe key→document store under a single directory.
// Writes go to a sibling temp file and are renamed over the target; reads
// take the same lock so a torn read is impossible even on filesystems
// without atomic-rename visibility guarantees for concurrent readers.
type Store struct {
	dir string

	mu           sync.Mutex
	warnedLegacy map[string]bool

	now func() time.Time
}

// New creates the cache directory if needed and returns a Store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{
		dir:          dir,
		warnedLegacy: make(map[string]bool),
		now:          time.Now,
	}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string { return s.dir }

func safeName(token common.Address) string {
	return strings.TrimPrefix(strings.ToLower(token.Hex()), "0x")
}

// path is the chain-qualified document path. Two tokens sharing an
// address across chains must not collide.
func (s *Store) path(chainID uint64, token common.Address) string {
	return filepath.Join(s.dir, fmt.Sprintf("holders_%d_%s.json", chainID, safeName(token)))
}

// legacyPath is the pre-multichain document path, kept readable so that
// operators upgrading in place do not lose their cache.
func (s *Store) legacyPath(token common.Address) string {
	return filepath.Join(s.dir, fmt.Sprintf("holders_%s.json", safeName(token)))
}

// Save writes a holder set for (chainID, token). ReadableBalance, counts
// and timestamps are filled in here. Failures are logged and reported as
// false; the caller treats the cache as best-effort.
func (s *Store) Save(chainID uint64, token common.Address, holders []Holder, symbol, source string, decimals uint8) bool {
	now := s.now()
	doc := Document{
		TokenAddress: strings.ToLower(token.Hex()),
		ChainID:      chainID,
		Symbol:       symbol,
		Decimals:     decimals,
		UpdatedAt:    float64(now.UnixNano()) / float64(time.Second),
		UpdatedAtStr: now.Format(time.RFC3339),
		Source:       source,
		HoldersCount: len(holders),
		Holders:      make([]Holder, len(holders)),
	}
	for i, h := range holders {
		h.ReadableBalance = readableBalance(h.Balance, decimals)
		doc.Holders[i] = h
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Warn("Holder cache encode failed", "token", token, "err", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(chainID, token)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		log.Warn("Holder cache write failed", "token", token, "err", err)
		return false
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		log.Warn("Holder cache rename failed", "token", token, "err", err)
		return false
	}
	return true
}

// Load returns the document for (chainID, token), or (nil, false) when it
// is absent, unreadable, or older than maxAge. A maxAge <= 0 disables the
// freshness check.
func (s *Store) Load(chainID uint64, token common.Address, maxAge time.Duration) (*Document, bool) {
	s.mu.Lock()
	doc := s.read(chainID, token)
	s.mu.Unlock()
	if doc == nil {
		return nil, false
	}
	if maxAge > 0 {
		age := float64(s.now().UnixNano())/float64(time.Second) - doc.UpdatedAt
		if age > maxAge.Seconds() {
			return nil, false
		}
	}
	return doc, true
}

// Metadata returns the header view of the cached document, without any
// freshness check.
func (s *Store) Metadata(chainID uint64, token common.Address) (*Metadata, bool) {
	doc, ok := s.Load(chainID, token, 0)
	if !ok {
		return nil, false
	}
	count := doc.HoldersCount
	if count == 0 {
		count = len(doc.Holders)
	}
	return &Metadata{
		TokenAddress: doc.TokenAddress,
		Symbol:       doc.Symbol,
		UpdatedAt:    doc.UpdatedAt,
		Source:       doc.Source,
		Count:        count,
	}, true
}

// read loads from the chain-qualified path, falling back to the legacy
// unqualified one. Caller holds s.mu.
func (s *Store) read(chainID uint64, token common.Address) *Document {
	path := s.path(chainID, token)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		legacy := s.legacyPath(token)
		raw, err = os.ReadFile(legacy)
		if err == nil && !s.warnedLegacy[legacy] {
			s.warnedLegacy[legacy] = true
			log.Warn("Using legacy holder cache file, rename to the chain-qualified form",
				"have", filepath.Base(legacy), "want", filepath.Base(path))
		}
	}
	if err != nil {
		return nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Warn("Holder cache decode failed", "token", token, "err", err)
		return nil
	}
	return &doc
}

// Exists reports whether any document (chain-qualified or legacy) is on
// disk for the pair.
func (s *Store) Exists(chainID uint64, token common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path(chainID, token)); err == nil {
		return true
	}
	_, err := os.Stat(s.legacyPath(token))
	return err == nil
}

// Delete removes the cached document for the pair, legacy file included.
func (s *Store) Delete(chainID uint64, token common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := true
	for _, p := range []string{s.path(chainID, token), s.legacyPath(token)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn("Holder cache delete failed", "path", p, "err", err)
			ok = false
		}
	}
	return ok
}

// ListCached returns the filenames of every holder document in the store.
func (s *Store) ListCached() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches, err := filepath.Glob(filepath.Join(s.dir, "holders_*.json"))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names
}

// ClearAll deletes every holder document and returns how many were removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches, _ := filepath.Glob(filepath.Join(s.dir, "holders_*.json"))
	n := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			n++
		}
	}
	return n
}

func readableBalance(raw string, decimals uint8) float64 {
	f, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}
