package whale

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tos-network/whalewatch/provider"
)

// Index is the global whale lookup structure: address → token → rank.
// The refresh engine replaces one token's entries at a time; pollers
// resolve log addresses against it on every classification. All mutation
// and the TokenState ranking swap happen inside one critical section, so
// a reader observes either the pre- or the post-install view of a token,
// never a mixture.
type Index struct {
	mu     sync.RWMutex
	byAddr map[common.Address]map[common.Address]int // whale → token → rank
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{byAddr: make(map[common.Address]map[common.Address]int)}
}

// Install atomically replaces the whale set of ts with holders: stale
// reverse-index entries are dropped, new ones inserted, and the token's
// whitelist/details/provenance swapped before the lock is released.
func (ix *Index) Install(ts *TokenState, holders []provider.Holder, source string) {
	newSet := make(map[common.Address]struct{}, len(holders))
	newDetails := make(map[common.Address]HolderDetail, len(holders))
	for _, h := range holders {
		newSet[h.Address] = struct{}{}
		newDetails[h.Address] = HolderDetail{Rank: h.Rank, Balance: h.Balance}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for addr := range ts.whitelist {
		if _, keep := newSet[addr]; keep {
			continue
		}
		if inner := ix.byAddr[addr]; inner != nil {
			delete(inner, ts.Address)
			if len(inner) == 0 {
				delete(ix.byAddr, addr)
			}
		}
	}
	for addr, det := range newDetails {
		inner := ix.byAddr[addr]
		if inner == nil {
			inner = make(map[common.Address]int)
			ix.byAddr[addr] = inner
		}
		inner[ts.Address] = det.Rank
	}

	ts.whitelist = newSet
	ts.details = newDetails
	ts.source = source
	ts.lastRefresh = time.Now()
}

// Lookup returns a copy of the token→rank mapping for addr.
func (ix *Index) Lookup(addr common.Address) map[common.Address]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	inner := ix.byAddr[addr]
	if inner == nil {
		return nil
	}
	out := make(map[common.Address]int, len(inner))
	for token, rank := range inner {
		out[token] = rank
	}
	return out
}

// Rank returns addr's rank on token, if any.
func (ix *Index) Rank(addr, token common.Address) (int, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rank, ok := ix.byAddr[addr][token]
	return rank, ok
}

// Hit resolves a transfer between from and to against token's whale set
// in one critical section. The sender wins ties: a whale-to-whale
// transfer of the same token is reported once, as the sender's action.
func (ix *Index) Hit(token, from, to common.Address) (addr common.Address, rank int, sender bool, ok bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if rank, hit := ix.byAddr[from][token]; hit {
		return from, rank, true, true
	}
	if rank, hit := ix.byAddr[to][token]; hit {
		return to, rank, false, true
	}
	return common.Address{}, 0, false, false
}

// WhaleCount returns the size of ts's current whitelist.
func (ix *Index) WhaleCount(ts *TokenState) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ts.whitelist)
}

// Size returns the number of distinct whale addresses across all tokens.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byAddr)
}

// Detail returns ts's ranking record for addr, read under the lock.
func (ix *Index) Detail(ts *TokenState, addr common.Address) (HolderDetail, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	det, ok := ts.details[addr]
	return det, ok
}
