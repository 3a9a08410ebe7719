package resilience

import (
	"container/list"
	"sync"
)

// DefaultDedupCapacity is the spec's default bounded set size (§4.4).
const DefaultDedupCapacity = 10000

// Deduplicator is a bounded, FIFO-evicted set of seen ids, used to guard
// against at-least-once tell redelivery (spec §4.2, §8 property 7).
type Deduplicator struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

// NewDeduplicator creates a Deduplicator with the given capacity, defaulting
// to DefaultDedupCapacity when capacity <= 0.
func NewDeduplicator(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &Deduplicator{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// IsDuplicate returns true if id was already seen; otherwise it records id
// and returns false. At most one call per id ever returns false.
func (d *Deduplicator) IsDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[id]; ok {
		return true
	}

	elem := d.order.PushBack(id)
	d.index[id] = elem

	if d.order.Len() > d.capacity {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.index, oldest.Value.(string))
	}

	return false
}

// Len returns the number of ids currently tracked.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
