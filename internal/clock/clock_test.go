package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var got []string
	c.AfterFunc(2*time.Minute, func() { got = append(got, "b") })
	c.AfterFunc(time.Minute, func() { got = append(got, "a") })
	stopped := c.AfterFunc(90*time.Second, func() { got = append(got, "x") })
	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())

	c.Advance(30 * time.Second)
	assert.Empty(t, got)
	assert.Equal(t, 2, c.Pending())

	c.Advance(5 * time.Minute)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, start.Add(5*time.Minute+30*time.Second), c.Now())
	assert.Zero(t, c.Pending())
}

func TestFakeDeadline(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewFake(start)
	tm := c.AfterFunc(time.Hour, func() {})
	assert.Equal(t, start.Add(time.Hour), tm.Deadline())
}

func TestFakeSetNeverMovesBackwards(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewFake(start)
	c.Set(start.Add(-time.Hour))
	assert.Equal(t, start, c.Now())
}
