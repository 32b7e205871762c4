package ttlcache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linkside/gateway/pkg/ttlcache"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeNow returns an injectable clock backed by a mutable pointer.
func fakeNow() (func() time.Time, *time.Time) {
	now := baseTime
	return func() time.Time { return now }, &now
}

func TestGetSet(t *testing.T) {
	now, _ := fakeNow()
	c := ttlcache.New[string](time.Minute, 10, now)

	if _, ok := c.Get("k"); ok {
		t.Error("expected miss on empty cache")
	}

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("Get() = %q, %v, want v, true", got, ok)
	}
}

func TestGet_ExpiredEntryIsMiss(t *testing.T) {
	now, clock := fakeNow()
	c := ttlcache.New[string](time.Minute, 10, now)

	c.Set("k", "v")

	// Exactly at TTL the entry is already stale.
	*clock = baseTime.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("entry at TTL age should not be served")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, len = %d", c.Len())
	}
}

func TestGet_JustUnderTTLHits(t *testing.T) {
	now, clock := fakeNow()
	c := ttlcache.New[string](time.Minute, 10, now)

	c.Set("k", "v")
	*clock = baseTime.Add(time.Minute - time.Nanosecond)

	if _, ok := c.Get("k"); !ok {
		t.Error("entry under TTL age should be served")
	}
}

func TestSet_RefreshesTimestamp(t *testing.T) {
	now, clock := fakeNow()
	c := ttlcache.New[string](time.Minute, 10, now)

	c.Set("k", "v1")
	*clock = baseTime.Add(50 * time.Second)
	c.Set("k", "v2")

	// 70s after the first write but only 20s after the second.
	*clock = baseTime.Add(70 * time.Second)
	got, ok := c.Get("k")
	if !ok || got != "v2" {
		t.Errorf("Get() = %q, %v, want v2 served after rewrite", got, ok)
	}
}

func TestSet_EvictsOldestAtBound(t *testing.T) {
	now, clock := fakeNow()
	c := ttlcache.New[int](time.Hour, 3, now)

	for i := 0; i < 3; i++ {
		*clock = baseTime.Add(time.Duration(i) * time.Second)
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	*clock = baseTime.Add(10 * time.Second)
	c.Set("k3", 3)

	if c.Len() != 3 {
		t.Errorf("len = %d, want 3", c.Len())
	}
	if _, ok := c.Get("k0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Error("newest entry missing")
	}
}

func TestPurge(t *testing.T) {
	now, clock := fakeNow()
	c := ttlcache.New[int](time.Minute, 0, now)

	c.Set("old", 1)
	*clock = baseTime.Add(30 * time.Second)
	c.Set("fresh", 2)

	*clock = baseTime.Add(70 * time.Second)
	if dropped := c.Purge(); dropped != 1 {
		t.Errorf("Purge() = %d, want 1", dropped)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("fresh entry should survive purge")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	now, clock := fakeNow()
	c := ttlcache.New[int](0, 0, now)

	c.Set("k", 1)
	*clock = baseTime.Add(1000 * time.Hour)

	if _, ok := c.Get("k"); !ok {
		t.Error("zero TTL should disable expiry")
	}
	if dropped := c.Purge(); dropped != 0 {
		t.Errorf("Purge() = %d, want 0", dropped)
	}
}

func TestDelete(t *testing.T) {
	c := ttlcache.New[int](time.Minute, 0, nil)
	c.Set("k", 1)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted entry still present")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := ttlcache.New[int](time.Minute, 100, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%20)
				c.Set(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("len = %d, exceeds bound", c.Len())
	}
}
