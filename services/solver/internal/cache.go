package internal

import (
	"sync"

	"github.com/forge-ai/solver/services/solver/internal/pipeline"
)

// ResultCache keeps the last finished solution and debug result in memory so
// a follow-up can reuse the extracted problem and the UI can refetch results.
type ResultCache struct {
	mu       sync.RWMutex
	solution *pipeline.Solution
	debug    *pipeline.DebugResult
}

// SetSolution stores a new solution and drops the debug result of the
// previous one.
func (c *ResultCache) SetSolution(s *pipeline.Solution) {
	c.mu.Lock()
	c.solution = s
	c.debug = nil
	c.mu.Unlock()
}

func (c *ResultCache) SetDebug(d *pipeline.DebugResult) {
	c.mu.Lock()
	c.debug = d
	c.mu.Unlock()
}

func (c *ResultCache) Solution() *pipeline.Solution {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.solution
}

func (c *ResultCache) Debug() *pipeline.DebugResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.debug
}

// LatestCode is the code a follow-up should review: the last debug fix if
// there is one, otherwise the solution's code.
func (c *ResultCache) LatestCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.debug != nil && c.debug.Code != pipeline.DebugPlaceholderCode {
		return c.debug.Code
	}
	if c.solution != nil {
		return c.solution.Code
	}
	return ""
}

func (c *ResultCache) Clear() {
	c.mu.Lock()
	c.solution, c.debug = nil, nil
	c.mu.Unlock()
}
