package docstore

import (
	"sync"
	"time"
)

// clock hands out strictly increasing UTC timestamps at a fixed resolution, so
// creation order within a process survives backends that store coarse times.
type clock struct {
	now  func() time.Time
	step time.Duration

	mu   sync.Mutex
	last time.Time
}

func (c *clock) stamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(c.step)
	if !t.After(c.last) {
		t = c.last.Add(c.step)
	}
	c.last = t
	return t
}
