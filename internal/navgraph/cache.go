package navgraph

import (
	"sync"

	"github.com/vovakirdan/railsim/internal/network"
)

// Cache holds the last built graph and rebuilds it lazily once the network
// has moved on.
type Cache struct {
	src Source

	mu       sync.Mutex
	g        *Graph
	stale    bool
	rebuilds int
}

// NewCache returns an empty cache over src.
func NewCache(src Source) *Cache {
	return &Cache{src: src, stale: true}
}

// Watch invalidates the cache on every change of n. The returned func stops
// watching.
func (c *Cache) Watch(n *network.Network) func() {
	return n.Subscribe(func(network.Change) { c.Invalidate() })
}

// Invalidate marks the cached graph stale.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// Graph returns a graph matching the current network version, rebuilding it
// if needed. The returned graph is immutable and may be held indefinitely.
func (c *Cache) Graph() *Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.g == nil || c.stale || c.g.Version != c.src.Version() {
		c.g = Build(c.src)
		c.stale = false
		c.rebuilds++
	}
	return c.g
}

// Stale reports whether the next Graph call will rebuild.
func (c *Cache) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.g == nil || c.stale || c.g.Version != c.src.Version()
}

// Rebuilds returns how many graphs have been built.
func (c *Cache) Rebuilds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuilds
}
