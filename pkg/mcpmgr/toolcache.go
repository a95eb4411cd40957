package mcpmgr

import (
	"slices"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type cacheState int

const (
	cacheEmpty cacheState = iota
	cacheStale
	cacheFresh
)

func (s cacheState) String() string {
	switch s {
	case cacheStale:
		return "stale"
	case cacheFresh:
		return "fresh"
	default:
		return "empty"
	}
}

// toolCache holds the last fetched tool catalog. An invalidation that races
// with a fetch leaves the cache stale: fetches record the generation they
// started in and only mark the cache fresh if nothing invalidated it since.
type toolCache struct {
	mu    sync.Mutex
	state cacheState
	gen   uint64
	tools []*mcp.Tool
}

// lookup returns the cached catalog when it is fresh and non-empty.
func (c *toolCache) lookup() ([]*mcp.Tool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != cacheFresh || len(c.tools) == 0 {
		return nil, false
	}
	return slices.Clone(c.tools), true
}

func (c *toolCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *toolCache) store(tools []*mcp.Tool, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = slices.Clone(tools)
	if gen == c.gen {
		c.state = cacheFresh
	} else {
		c.state = cacheStale
	}
}

func (c *toolCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.state == cacheFresh {
		c.state = cacheStale
	}
}

func (c *toolCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = cacheEmpty
	c.tools = nil
}

func (c *toolCache) current() cacheState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
