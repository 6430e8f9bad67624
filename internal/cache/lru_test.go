package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[string](3, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")

	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v, want 1, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Errorf("Get(missing) should miss")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	// Touch "a" so "b" becomes the eviction candidate.
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Errorf("least recently used entry should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Errorf("recently used entry should survive eviction")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Errorf("expired entry should miss")
	}

	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("CleanExpired() = %d, want 1", removed)
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("a", 1)
	c.Delete("a")
	c.Delete("never-existed")

	if _, ok := c.Get("a"); ok {
		t.Errorf("deleted entry should miss")
	}
}

func TestManagerSweepsRegisteredCaches(t *testing.T) {
	first := NewLRUCache[int](10, 5*time.Millisecond)
	second := NewLRUCache[string](10, 5*time.Millisecond)

	m := NewManager()
	m.Register(first)
	m.Register(second)

	first.Set("a", 1)
	second.Set("b", "x")

	m.StartCleanup(10 * time.Millisecond)
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for first.Size()+second.Size() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expired entries not swept: sizes %d and %d", first.Size(), second.Size())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerStopWaitsForSweep(t *testing.T) {
	m := NewManager()
	m.Register(NewLRUCache[int](1, time.Minute))
	m.StartCleanup(time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
