package client

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// Dedup suppresses duplicate deliveries of the same message across the two
// delivery paths (signaling broadcast and media-room side-channel). It is a
// time- and size-bounded set of processed keys.
type Dedup struct {
	mu      sync.Mutex
	cap     int
	ttl     time.Duration
	entries map[string]time.Time // key -> insertion time
	now     func() time.Time
}

func NewDedup(capacity int, ttl time.Duration) *Dedup {
	return &Dedup{
		cap:     capacity,
		ttl:     ttl,
		entries: make(map[string]time.Time, capacity),
		now:     time.Now,
	}
}

// DedupKey is the message id when present, else a stable hash of
// (timestamp, senderId, content).
func DedupKey(id, timestamp, senderID, content string) string {
	if id != "" {
		return id
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%s|%s", timestamp, senderID, content)
	return fmt.Sprintf("h:%x", h.Sum64())
}

// Seen records the key and reports whether it was already present. Repeated
// deliveries within the expiry window return true and must be dropped.
func (d *Dedup) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if at, ok := d.entries[key]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.entries[key] = now
	if len(d.entries) > d.cap {
		d.evict(now)
	}
	return false
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Dedup) Clear() {
	d.mu.Lock()
	d.entries = make(map[string]time.Time, d.cap)
	d.mu.Unlock()
}

// evict drops expired entries first, then the oldest until under cap.
func (d *Dedup) evict(now time.Time) {
	for k, at := range d.entries {
		if now.Sub(at) >= d.ttl {
			delete(d.entries, k)
		}
	}
	for len(d.entries) > d.cap {
		var oldestKey string
		var oldestAt time.Time
		for k, at := range d.entries {
			if oldestKey == "" || at.Before(oldestAt) {
				oldestKey, oldestAt = k, at
			}
		}
		delete(d.entries, oldestKey)
	}
}
