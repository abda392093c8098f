package build

import (
	"sync"
	"time"
)

// counters aggregates per-build numbers from all workers. One mutex is
// enough: updates are tiny compared to stage work.
type counters struct {
	mu            sync.Mutex
	rendered      int
	written       int
	unchanged     int
	skippedDrafts int
	stages        map[string]time.Duration
}

func newCounters() *counters {
	return &counters{stages: make(map[string]time.Duration)}
}

func (c *counters) addStage(stage string, d time.Duration) {
	c.mu.Lock()
	c.stages[stage] += d
	c.mu.Unlock()
}

func (c *counters) addRendered() {
	c.mu.Lock()
	c.rendered++
	c.mu.Unlock()
}

func (c *counters) addArtifact(wrote bool) {
	c.mu.Lock()
	if wrote {
		c.written++
	} else {
		c.unchanged++
	}
	c.mu.Unlock()
}

func (c *counters) addSkippedDraft() {
	c.mu.Lock()
	c.skippedDrafts++
	c.mu.Unlock()
}

func (c *counters) snapshot() (rendered, written, unchanged, skippedDrafts int, stages map[string]time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Duration, len(c.stages))
	for k, v := range c.stages {
		out[k] = v
	}
	return c.rendered, c.written, c.unchanged, c.skippedDrafts, out
}
