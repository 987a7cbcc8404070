package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	c := newClock(func() time.Time { return fixed })

	first := c.Now()
	second := c.Now()

	assert.Equal(t, fixed.Truncate(time.Microsecond), first)
	assert.Equal(t, first.Add(time.Microsecond), second)
}

func TestClock_FollowsTimeForward(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newClock(func() time.Time { return now })

	c.Now()
	now = now.Add(time.Second)
	assert.Equal(t, now, c.Now())
}

func TestClock_ReturnsUTC(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	c := newClock(func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, loc) })

	assert.Equal(t, time.UTC, c.Now().Location())
}
