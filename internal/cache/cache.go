// Package cache provides an in-memory cache for computed graph layouts.
// Entries are keyed by layout direction and invalidated when the topology
// generation advances or the TTL expires. Lazy expiration, no background
// goroutine.
package cache

import (
	"sync"
	"time"

	"github.com/gridpulse/gridpulse-ui/internal/layout"
)

type entry struct {
	graph      *layout.Graph
	generation uint64
	setAt      time.Time
}

// Cache holds one cached graph per layout direction.
type Cache struct {
	ttl  time.Duration
	mu   sync.RWMutex
	data map[layout.Direction]entry
}

// New creates a new Cache with the given TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:  ttl,
		data: make(map[layout.Direction]entry),
	}
}

// Get returns the cached graph for the direction if it exists, belongs to
// the given generation, and has not expired.
func (c *Cache) Get(dir layout.Direction, generation uint64) (*layout.Graph, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[dir]
	if !ok {
		return nil, false
	}
	if e.generation != generation {
		return nil, false
	}
	if time.Since(e.setAt) > c.ttl {
		return nil, false
	}
	return e.graph, true
}

// Set stores a graph for the direction with the current timestamp.
func (c *Cache) Set(dir layout.Direction, generation uint64, g *layout.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[dir] = entry{graph: g, generation: generation, setAt: time.Now()}
}
