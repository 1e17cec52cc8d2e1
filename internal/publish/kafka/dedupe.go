package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// digestDedupe remembers the newest event time seen per digest. Redelivered
// or replayed events for a digest are dropped.
type digestDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newDigestDedupe(size int) *digestDedupe {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, int64](size)
	return &digestDedupe{lru: c}
}

// returns true if ts is newer than the last one seen for digest
func (d *digestDedupe) shouldApply(digest string, ts int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(digest); ok && ts <= last {
		return false
	}
	d.lru.Add(digest, ts)
	return true
}

// forget drops digest so a later redelivery is applied again.
func (d *digestDedupe) forget(digest string) {
	d.mu.Lock()
	d.lru.Remove(digest)
	d.mu.Unlock()
}
