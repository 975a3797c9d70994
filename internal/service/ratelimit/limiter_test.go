package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	now = now.Add(time.Hour)
	assert.Equal(t, 2, l.Prune(time.Minute))
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("x"))
	}
}
