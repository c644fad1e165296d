package tunnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeLimiterBucket(t *testing.T) {
	l := NewHandshakeLimiter(10, 2)
	require.NotNil(t, l)
	clock := time.Now()
	l.now = func() time.Time { return clock }

	assert.True(t, l.AllowHandshake())
	assert.True(t, l.AllowHandshake())
	assert.False(t, l.AllowHandshake(), "burst spent")

	clock = clock.Add(110 * time.Millisecond)
	assert.True(t, l.AllowHandshake(), "one token back after 100ms")
	assert.False(t, l.AllowHandshake())

	clock = clock.Add(time.Hour)
	allowed := 0
	for range 5 {
		if l.AllowHandshake() {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "refill is capped at the burst")
}

func TestHandshakeLimiterDisabled(t *testing.T) {
	l := NewHandshakeLimiter(0, 5)
	assert.Nil(t, l)
	for range 100 {
		assert.True(t, l.AllowHandshake())
	}
}

func TestHandshakeLimiterMinimumBurst(t *testing.T) {
	l := NewHandshakeLimiter(1, 0)
	clock := time.Now()
	l.now = func() time.Time { return clock }

	assert.True(t, l.AllowHandshake())
	assert.False(t, l.AllowHandshake())
}
