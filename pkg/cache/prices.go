// Package cache holds the latest observed price per pair.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// Prices is a sharded last-price cache shared by the validation layer,
// the demo connector and the pending-order sweep.
type Prices struct {
	shards [numShards]*shard
}

type shard struct {
	mu    sync.RWMutex
	items map[string]entry
}

type entry struct {
	price     float64
	updatedAt time.Time
}

// NewPrices creates an empty cache.
func NewPrices() *Prices {
	c := &Prices{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard{items: make(map[string]entry)}
	}
	return c
}

func (c *Prices) getShard(pair string) *shard {
	h := fnv.New32a()
	h.Write([]byte(pair))
	return c.shards[h.Sum32()%numShards]
}

// Set stores the latest price for a pair.
func (c *Prices) Set(pair string, price float64) {
	s := c.getShard(pair)
	s.mu.Lock()
	s.items[pair] = entry{price: price, updatedAt: time.Now()}
	s.mu.Unlock()
}

// Get returns the latest price for a pair.
func (c *Prices) Get(pair string) (float64, bool) {
	s := c.getShard(pair)
	s.mu.RLock()
	e, ok := s.items[pair]
	s.mu.RUnlock()
	return e.price, ok
}

// Snapshot returns all cached prices as a plain map.
func (c *Prices) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	for _, s := range c.shards {
		s.mu.RLock()
		for pair, e := range s.items {
			out[pair] = e.price
		}
		s.mu.RUnlock()
	}
	return out
}

// Cleanup drops entries older than maxAge, returning how many were removed.
func (c *Prices) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for pair, e := range s.items {
			if e.updatedAt.Before(cutoff) {
				delete(s.items, pair)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of cached pairs.
func (c *Prices) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}
