package whale

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tos-network/whalewatch/provider"
)

var (
	tokenA = common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	tokenB = common.HexToAddress("0xBBB0000000000000000000000000000000000002")
	whale1 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	whale2 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	whale3 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func holders(hs ...provider.Holder) []provider.Holder { return hs }

func TestInstallAndLookup(t *testing.T) {
	ix := NewIndex()
	ts := NewTokenState(tokenA, "ethereum", 1, 10, 100)

	ix.Install(ts, holders(
		provider.Holder{Address: whale1, Rank: 1, Balance: "10"},
		provider.Holder{Address: whale2, Rank: 2, Balance: "5"},
	), "chainbase")

	if rank, ok := ix.Rank(whale1, tokenA); !ok || rank != 1 {
		t.Fatalf("whale1 rank mismatch: %d %v", rank, ok)
	}
	if _, ok := ix.Rank(whale3, tokenA); ok {
		t.Fatal("whale3 should not be indexed")
	}
	if ix.WhaleCount(ts) != 2 || ix.Size() != 2 {
		t.Fatalf("count mismatch: whales=%d size=%d", ix.WhaleCount(ts), ix.Size())
	}
	if ts.Source() != "chainbase" {
		t.Fatalf("source mismatch: %s", ts.Source())
	}
}

func TestInstallReplacesOldSet(t *testing.T) {
	ix := NewIndex()
	ts := NewTokenState(tokenA, "ethereum", 1, 10, 100)

	ix.Install(ts, holders(
		provider.Holder{Address: whale1, Rank: 1},
		provider.Holder{Address: whale2, Rank: 2},
	), "chainbase")
	ix.Install(ts, holders(
		provider.Holder{Address: whale2, Rank: 1},
		provider.Holder{Address: whale3, Rank: 2},
	), "chainbase")

	if _, ok := ix.Rank(whale1, tokenA); ok {
		t.Fatal("whale1 should have been dropped")
	}
	if rank, ok := ix.Rank(whale2, tokenA); !ok || rank != 1 {
		t.Fatalf("whale2 should have moved to rank 1, got %d %v", rank, ok)
	}
	if rank, ok := ix.Rank(whale3, tokenA); !ok || rank != 2 {
		t.Fatalf("whale3 missing after install: %d %v", rank, ok)
	}
	if ix.Size() != 2 {
		t.Fatalf("stale outer entries leaked: size=%d", ix.Size())
	}
}

func TestCrossTokenIndependence(t *testing.T) {
	ix := NewIndex()
	a := NewTokenState(tokenA, "ethereum", 1, 10, 100)
	b := NewTokenState(tokenB, "ethereum", 1, 20, 100)

	ix.Install(a, holders(provider.Holder{Address: whale1, Rank: 10}), "chainbase")
	ix.Install(b, holders(provider.Holder{Address: whale1, Rank: 20}), "chainbase")

	got := ix.Lookup(whale1)
	if len(got) != 2 || got[tokenA] != 10 || got[tokenB] != 20 {
		t.Fatalf("cross-token lookup mismatch: %v", got)
	}

	// Dropping whale1 from token A must not disturb token B.
	ix.Install(a, nil, "chainbase")
	if _, ok := ix.Rank(whale1, tokenA); ok {
		t.Fatal("whale1 still on token A")
	}
	if rank, ok := ix.Rank(whale1, tokenB); !ok || rank != 20 {
		t.Fatalf("token B state disturbed: %d %v", rank, ok)
	}
}

func TestHitSenderWins(t *testing.T) {
	ix := NewIndex()
	ts := NewTokenState(tokenA, "ethereum", 1, 10, 100)
	ix.Install(ts, holders(
		provider.Holder{Address: whale1, Rank: 1},
		provider.Holder{Address: whale2, Rank: 2},
	), "chainbase")

	addr, rank, sender, ok := ix.Hit(tokenA, whale1, whale2)
	if !ok || addr != whale1 || rank != 1 || !sender {
		t.Fatalf("sender should win the tie: addr=%v rank=%d sender=%v", addr, rank, sender)
	}

	addr, rank, sender, ok = ix.Hit(tokenA, whale3, whale2)
	if !ok || addr != whale2 || rank != 2 || sender {
		t.Fatalf("recipient hit mismatch: addr=%v rank=%d sender=%v", addr, rank, sender)
	}

	if _, _, _, ok := ix.Hit(tokenA, whale3, whale3); ok {
		t.Fatal("no whale involved, must not hit")
	}
}

// Concurrent installs and lookups must never expose a state where the
// whale carries ranks from two different generations of the same token.
func TestConcurrentInstallLookupConsistency(t *testing.T) {
	ix := NewIndex()
	ts := NewTokenState(tokenA, "ethereum", 1, 10, 100)

	genA := holders(provider.Holder{Address: whale1, Rank: 1}, provider.Holder{Address: whale2, Rank: 2})
	genB := holders(provider.Holder{Address: whale1, Rank: 2}, provider.Holder{Address: whale2, Rank: 1})

	// Seed one generation synchronously so the readers below never race
	// against an index that has not seen its first install yet.
	ix.Install(ts, genA, "chainbase")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				ix.Install(ts, genA, "chainbase")
			} else {
				ix.Install(ts, genB, "chainbase")
			}
		}
	}()

	for i := 0; i < 5000; i++ {
		r1, ok1 := ix.Rank(whale1, tokenA)
		r2, ok2 := ix.Rank(whale2, tokenA)
		if !ok1 || !ok2 {
			t.Fatal("whale vanished mid-install")
		}
		// Separate reads may straddle an install, but each must come from
		// a coherent generation.
		if r1 != 1 && r1 != 2 || r2 != 1 && r2 != 2 {
			t.Fatalf("impossible ranks: %d %d", r1, r2)
		}
		if m := ix.Lookup(whale1); m[tokenA] != 1 && m[tokenA] != 2 {
			t.Fatalf("torn lookup: %v", m)
		}
	}
	close(stop)
	wg.Wait()
}
