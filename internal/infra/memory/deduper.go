package memory

import (
	"context"
	"sync"
	"time"
)

// Deduper remembers processed update ids for ttl so redelivered webhooks are dropped.
type Deduper struct {
	ttl   time.Duration
	clock func() time.Time

	mu        sync.Mutex
	seen      map[int64]time.Time
	lastPrune time.Time
}

func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{
		ttl:   ttl,
		clock: time.Now,
		seen:  make(map[int64]time.Time),
	}
}

// Seen marks id as processed and reports whether it had already been marked.
func (d *Deduper) Seen(_ context.Context, id int64) (bool, error) {
	now := d.clock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Sub(d.lastPrune) > d.ttl {
		for key, at := range d.seen {
			if now.Sub(at) > d.ttl {
				delete(d.seen, key)
			}
		}
		d.lastPrune = now
	}
	if at, ok := d.seen[id]; ok && now.Sub(at) <= d.ttl {
		return true, nil
	}
	d.seen[id] = now
	return false, nil
}
