package conversation

import (
	"sync"
	"time"
)

// clock stamps messages. Stores keep microseconds at best, so readings are
// truncated to that precision and forced strictly increasing; ordering by
// timestamp then matches construction order.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newClock(now func() time.Time) *clock {
	return &clock{now: now}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
