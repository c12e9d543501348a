// Package dedup prevents the same script URL from being processed more
// than once within a scan cycle, even when multiple targets reference
// the same asset.
package dedup

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Deduplicator tracks seen script URLs using a Bloom filter with an
// exact map behind it for false-positive confirmation.
type Deduplicator struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	count  int
}

// New creates a deduplicator sized for the estimated URL count.
func New(estimatedItems int) *Deduplicator {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &Deduplicator{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// MarkSeen records a URL and reports whether it was new.
func (d *Deduplicator) MarkSeen(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.exact[url]; exists {
		return false
	}
	d.filter.AddString(url)
	d.exact[url] = struct{}{}
	d.count++
	return true
}

// HasSeen checks whether a URL was already recorded.
func (d *Deduplicator) HasSeen(url string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.filter.TestString(url) {
		return false
	}
	_, exists := d.exact[url]
	return exists
}

// Count returns the number of unique URLs recorded.
func (d *Deduplicator) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}

// Reset clears all state between scan cycles.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.filter.ClearAll()
	d.exact = make(map[string]struct{})
	d.count = 0
}
