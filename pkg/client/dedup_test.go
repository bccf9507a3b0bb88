package client

import (
	"fmt"
	"testing"
	"time"
)

func TestDedupExactlyOnce(t *testing.T) {
	t.Parallel()
	d := NewDedup(500, time.Minute)

	key := DedupKey("m1", "", "", "")
	if d.Seen(key) {
		t.Fatal("first arrival flagged as duplicate")
	}
	if !d.Seen(key) {
		t.Fatal("second arrival not suppressed")
	}
	if !d.Seen(key) {
		t.Fatal("third arrival not suppressed")
	}
}

func TestDedupKeyFallsBackToContentHash(t *testing.T) {
	t.Parallel()
	ts := "2026-09-01T10:00:00Z"

	a := DedupKey("", ts, "alice", "hello")
	b := DedupKey("", ts, "alice", "hello")
	if a != b {
		t.Errorf("identical content hashed differently: %q vs %q", a, b)
	}
	if c := DedupKey("", ts, "bob", "hello"); c == a {
		t.Error("different sender collided")
	}
	if c := DedupKey("", ts, "alice", "hello!"); c == a {
		t.Error("different content collided")
	}
	if id := DedupKey("m1", ts, "alice", "hello"); id != "m1" {
		t.Errorf("server id not preferred: %q", id)
	}
}

func TestDedupTTLExpiry(t *testing.T) {
	t.Parallel()
	d := NewDedup(500, time.Minute)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	d.Seen("k")
	base = base.Add(61 * time.Second)
	if d.Seen("k") {
		t.Error("entry past its ttl still suppressed delivery")
	}
}

func TestDedupEvictionOrder(t *testing.T) {
	t.Parallel()
	d := NewDedup(3, time.Minute)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	d.Seen("old") // will expire before the cache fills
	base = base.Add(2 * time.Minute)
	for i := 0; i < 3; i++ {
		d.Seen(fmt.Sprintf("live-%d", i))
		base = base.Add(time.Second)
	}

	// expired entries go first; the live ones survive the overflow
	if d.Len() > 3 {
		t.Fatalf("cache over capacity: %d", d.Len())
	}
	for i := 0; i < 3; i++ {
		if !d.Seen(fmt.Sprintf("live-%d", i)) {
			t.Errorf("live-%d was evicted while an expired entry was available", i)
		}
	}
}

func TestDedupEvictsOldestWhenNoneExpired(t *testing.T) {
	t.Parallel()
	d := NewDedup(3, time.Hour)
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	for i := 0; i < 4; i++ {
		d.Seen(fmt.Sprintf("k%d", i))
		base = base.Add(time.Second)
	}
	if d.Len() > 3 {
		t.Fatalf("cache over capacity: %d", d.Len())
	}
	if d.Seen("k0") {
		t.Error("oldest entry was not the one evicted")
	}
	if !d.Seen("k3") {
		t.Error("newest entry was evicted")
	}
}

func TestDedupClear(t *testing.T) {
	t.Parallel()
	d := NewDedup(10, time.Minute)
	d.Seen("a")
	d.Seen("b")
	d.Clear()
	if d.Len() != 0 {
		t.Fatalf("len after clear = %d", d.Len())
	}
	if d.Seen("a") {
		t.Error("cleared entry still suppressed")
	}
}
