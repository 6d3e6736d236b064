package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestKeyNormalization(t *testing.T) {
	a := Key("Book a  Meeting")
	b := Key("book a meeting")
	if a != b {
		t.Error("case and whitespace differences should produce the same key")
	}
	if Key("book a meeting") == Key("book a workshop") {
		t.Error("different messages must get distinct keys")
	}
}

func TestGetSet(t *testing.T) {
	c := New()
	key := Key("hello")

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set(key, "Hi! How can I help you book today?")
	got, ok := c.Get(key)
	if !ok || got != "Hi! How can I help you book today?" {
		t.Fatalf("Get = (%q, %v), want cached response", got, ok)
	}
}

func TestExpiry(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	c := New(WithTTL(time.Minute), withClock(clock))

	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should be live before TTL")
	}

	current = current.Add(61 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be purged on access, len = %d", c.Len())
	}
}

func TestSweep(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	c := New(WithTTL(time.Minute), withClock(clock))

	c.Set("old1", "a")
	c.Set("old2", "b")
	current = current.Add(2 * time.Minute)
	c.Set("fresh", "c")

	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d after sweep, want 1", c.Len())
	}
}

func TestStatsHitRate(t *testing.T) {
	c := New()
	c.Set("k", "v")
	c.Get("k")
	c.Get("k")
	c.Get("missing")
	c.Get("missing2")

	s := c.Stats()
	if s.Hits != 2 || s.Lookups != 4 {
		t.Fatalf("stats = %+v, want 2 hits of 4 lookups", s)
	}
	if s.HitRate != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", s.HitRate)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := Key(fmt.Sprintf("msg-%d", j%10))
				c.Set(key, "result")
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 10 {
		t.Errorf("len = %d, want 10 distinct keys", c.Len())
	}
}
