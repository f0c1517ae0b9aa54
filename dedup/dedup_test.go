package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func key(i int) string {
	return fmt.Sprintf("ethereum:0xtx-%d:0", i)
}

func TestAddContains(t *testing.T) {
	s, err := NewSet(4)
	if err != nil {
		t.Fatalf("failed to create set: %v", err)
	}
	if s.Contains(key(1)) {
		t.Fatal("empty set claims membership")
	}
	s.Add(key(1))
	if !s.Contains(key(1)) {
		t.Fatal("added key not found")
	}
	if s.Len() != 1 {
		t.Fatalf("length mismatch: have %d want 1", s.Len())
	}
}

func TestEvictionOrder(t *testing.T) {
	s, err := NewSet(3)
	if err != nil {
		t.Fatalf("failed to create set: %v", err)
	}
	s.Add(key(1))
	s.Add(key(2))
	s.Add(key(3))

	// Touch 1 so it becomes most-recent, then overflow.
	if !s.Contains(key(1)) {
		t.Fatal("key 1 missing before overflow")
	}
	s.Add(key(4))

	if s.Contains(key(2)) {
		t.Fatal("least-recent key 2 should have been evicted")
	}
	if !s.Contains(key(1)) || !s.Contains(key(3)) || !s.Contains(key(4)) {
		t.Fatal("wrong survivor set after eviction")
	}
	if s.Len() != 3 {
		t.Fatalf("capacity exceeded: have %d want 3", s.Len())
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	s, err := NewSet(10)
	if err != nil {
		t.Fatalf("failed to create set: %v", err)
	}
	for i := 0; i < 100; i++ {
		s.Add(key(i))
		if s.Len() > 10 {
			t.Fatalf("capacity exceeded at insert %d: %d", i, s.Len())
		}
	}
	// The ten most recent inserts survive.
	for i := 90; i < 100; i++ {
		if !s.Contains(key(i)) {
			t.Fatalf("recent key %d evicted", i)
		}
	}
}

func TestReAddBumpsRecency(t *testing.T) {
	s, _ := NewSet(2)
	s.Add(key(1))
	s.Add(key(2))
	s.Add(key(1)) // bump, not duplicate
	if s.Len() != 2 {
		t.Fatalf("duplicate insert changed length: %d", s.Len())
	}
	s.Add(key(3))
	if s.Contains(key(2)) {
		t.Fatal("key 2 should have been evicted after 1 was bumped")
	}
	if !s.Contains(key(1)) {
		t.Fatal("bumped key 1 evicted")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := NewSet(64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Add(key(g*1000 + i))
				s.Contains(key(g*1000 + i))
			}
		}(g)
	}
	wg.Wait()
	if s.Len() != 64 {
		t.Fatalf("length mismatch after concurrent fill: have %d want 64", s.Len())
	}
}
