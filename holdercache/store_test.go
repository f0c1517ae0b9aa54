package holdercache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testToken = common.HexToAddress("0x6982508145454Ce325dDbE47a25d4ec3d2311933")
	testChain = uint64(1)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func sampleHolders() []Holder {
	return []Holder{
		{Address: "0x1111111111111111111111111111111111111111", Rank: 1, Balance: "5000000000000000000"},
		{Address: "0x2222222222222222222222222222222222222222", Rank: 2, Balance: "3000000000000000000"},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	before := float64(time.Now().UnixNano()) / float64(time.Second)
	if !s.Save(testChain, testToken, sampleHolders(), "PEPE", "chainbase", 18) {
		t.Fatal("save failed")
	}
	after := float64(time.Now().UnixNano()) / float64(time.Second)

	doc, ok := s.Load(testChain, testToken, 0)
	if !ok {
		t.Fatal("load returned no document")
	}
	if doc.Symbol != "PEPE" || doc.Source != "chainbase" || doc.Decimals != 18 {
		t.Fatalf("document header mismatch: %+v", doc)
	}
	if doc.UpdatedAt < before || doc.UpdatedAt > after {
		t.Fatalf("updated_at %v outside [%v, %v]", doc.UpdatedAt, before, after)
	}
	if len(doc.Holders) != 2 {
		t.Fatalf("holder count mismatch: have %d want 2", len(doc.Holders))
	}
	for i, want := range sampleHolders() {
		have := doc.Holders[i]
		if have.Address != want.Address || have.Rank != want.Rank || have.Balance != want.Balance {
			t.Fatalf("holder %d mismatch: have %+v want %+v", i, have, want)
		}
	}
	if doc.Holders[0].ReadableBalance != 5 {
		t.Fatalf("readable balance mismatch: have %v want 5", doc.Holders[0].ReadableBalance)
	}
}

func TestMetadataAfterSave(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.Metadata(testChain, testToken); ok {
		t.Fatal("expected no metadata before save")
	}
	if !s.Save(testChain, testToken, sampleHolders(), "PEPE", "ethplorer", 18) {
		t.Fatal("save failed")
	}
	meta, ok := s.Metadata(testChain, testToken)
	if !ok {
		t.Fatal("expected metadata after save")
	}
	if meta.Count != 2 || meta.Source != "ethplorer" {
		t.Fatalf("metadata mismatch: %+v", meta)
	}
}

func TestLoadMaxAge(t *testing.T) {
	s := newTestStore(t)
	s.Save(testChain, testToken, sampleHolders(), "PEPE", "chainbase", 18)

	// Pretend an hour has passed.
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	if _, ok := s.Load(testChain, testToken, 30*time.Minute); ok {
		t.Fatal("expected expired document to be rejected")
	}
	if _, ok := s.Load(testChain, testToken, 2*time.Hour); !ok {
		t.Fatal("expected document within horizon to load")
	}
	if _, ok := s.Load(testChain, testToken, 0); !ok {
		t.Fatal("expected no-horizon load to succeed")
	}
}

func TestChainQualifiedFilenames(t *testing.T) {
	s := newTestStore(t)
	s.Save(1, testToken, sampleHolders(), "PEPE", "chainbase", 18)
	s.Save(56, testToken, []Holder{{Address: "0x3333333333333333333333333333333333333333", Rank: 1, Balance: "1"}}, "PEPE", "chainbase", 18)

	eth, ok := s.Load(1, testToken, 0)
	if !ok || len(eth.Holders) != 2 {
		t.Fatalf("ethereum document clobbered: %+v", eth)
	}
	bsc, ok := s.Load(56, testToken, 0)
	if !ok || len(bsc.Holders) != 1 {
		t.Fatalf("bsc document clobbered: %+v", bsc)
	}
}

func TestLegacyFileFallback(t *testing.T) {
	s := newTestStore(t)

	// Write a v1-layout file, then make sure it is still readable through
	// the chain-qualified API.
	s.Save(testChain, testToken, sampleHolders(), "PEPE", "chainbase", 18)
	qualified := s.path(testChain, testToken)
	legacy := s.legacyPath(testToken)
	if err := os.Rename(qualified, legacy); err != nil {
		t.Fatalf("failed to set up legacy file: %v", err)
	}

	doc, ok := s.Load(testChain, testToken, 0)
	if !ok {
		t.Fatal("expected legacy document to load")
	}
	if len(doc.Holders) != 2 {
		t.Fatalf("legacy holder count mismatch: have %d want 2", len(doc.Holders))
	}
}

func TestDeleteAndList(t *testing.T) {
	s := newTestStore(t)
	other := common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	s.Save(1, testToken, sampleHolders(), "PEPE", "chainbase", 18)
	s.Save(1, other, sampleHolders(), "USDT", "chainbase", 6)

	if n := len(s.ListCached()); n != 2 {
		t.Fatalf("list count mismatch: have %d want 2", n)
	}
	if !s.Delete(1, testToken) {
		t.Fatal("delete failed")
	}
	if s.Exists(1, testToken) {
		t.Fatal("document still exists after delete")
	}
	if n := s.ClearAll(); n != 1 {
		t.Fatalf("clear count mismatch: have %d want 1", n)
	}
	if entries := s.ListCached(); len(entries) != 0 {
		t.Fatalf("store not empty after clear: %v", entries)
	}
}

func TestUnreadableDocumentIsAMiss(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(filepath.Join(s.Dir(), "holders_1_6982508145454ce325ddbe47a25d4ec3d2311933.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to plant corrupt file: %v", err)
	}
	if _, ok := s.Load(1, testToken, 0); ok {
		t.Fatal("expected corrupt document to read as a miss")
	}
}
