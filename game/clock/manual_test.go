package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClockFiresInDeadlineOrder(t *testing.T) {
	c := NewManual(time.Time{})
	var got []string

	c.AfterFunc(300*time.Millisecond, func() { got = append(got, "c") })
	c.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	c.AfterFunc(200*time.Millisecond, func() { got = append(got, "b") })

	c.Advance(150 * time.Millisecond)
	assert.Equal(t, []string{"a"}, got)

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, c.Pending())
}

func TestManualClockStop(t *testing.T) {
	c := NewManual(time.Time{})
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestManualClockNowAtDeadline(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)

	var seen time.Time
	c.AfterFunc(250*time.Millisecond, func() { seen = c.Now() })
	c.Advance(time.Second)

	assert.Equal(t, start.Add(250*time.Millisecond), seen)
	assert.Equal(t, start.Add(time.Second), c.Now())
}

func TestManualClockChainedCallbacks(t *testing.T) {
	c := NewManual(time.Time{})
	count := 0
	var step func()
	step = func() {
		count++
		if count < 5 {
			c.AfterFunc(100*time.Millisecond, step)
		}
	}
	c.AfterFunc(100*time.Millisecond, step)

	c.Advance(450 * time.Millisecond)
	assert.Equal(t, 4, count)

	c.Advance(50 * time.Millisecond)
	assert.Equal(t, 5, count)
	assert.Equal(t, 0, c.Pending())
}

func TestManualClockSameDeadlineFIFO(t *testing.T) {
	c := NewManual(time.Time{})
	var got []int
	for i := 0; i < 4; i++ {
		i := i
		c.AfterFunc(time.Second, func() { got = append(got, i) })
	}
	c.Advance(time.Second)
	require.Len(t, got, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}

func TestManualClockNextDeadline(t *testing.T) {
	c := NewManual(time.Time{})
	_, ok := c.NextDeadline()
	assert.False(t, ok)

	c.AfterFunc(2*time.Second, func() {})
	c.AfterFunc(time.Second, func() {})
	d, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, c.Now().Add(time.Second), d)
}
