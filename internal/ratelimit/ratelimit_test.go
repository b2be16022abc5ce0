package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time          { return c.now }
func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(rps float64, burst int) (*Limiter, *stepClock) {
	clk := &stepClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	return New(rps, burst).WithClock(clk.Now), clk
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	l, clk := newTestLimiter(2, 3)

	for i := 0; i < 3; i++ {
		d := l.Allow("alice")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d := l.Allow("alice")
	assert.False(t, d.Allowed)
	assert.Equal(t, 500*time.Millisecond, d.RetryAfter)

	clk.Advance(500 * time.Millisecond)
	assert.True(t, l.Allow("alice").Allowed)
	assert.False(t, l.Allow("alice").Allowed)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1)

	assert.True(t, l.Allow("alice").Allowed)
	assert.False(t, l.Allow("alice").Allowed)
	assert.True(t, l.Allow("bob").Allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, 10)
	assert.False(t, l.Enabled())
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("alice").Allowed)
	}
	assert.Empty(t, l.Stats())

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("alice").Allowed)
}

func TestLimiter_DefaultBurst(t *testing.T) {
	l, _ := newTestLimiter(2.5, 0)
	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("alice").Allowed)
	}
	assert.False(t, l.Allow("alice").Allowed)
}

func TestLimiter_PruneAndStats(t *testing.T) {
	l, clk := newTestLimiter(1, 2)
	l.Allow("alice")
	l.Allow("bob")

	stats := l.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, 2, stats["alice"].BurstSize)
	assert.InDelta(t, 1.0, stats["alice"].Available, 1e-9)

	assert.Zero(t, l.Prune(time.Minute))

	clk.Advance(30 * time.Second)
	l.Allow("bob")
	clk.Advance(40 * time.Second)
	assert.Equal(t, 1, l.Prune(time.Minute))
	_, ok := l.Stats()["bob"]
	assert.True(t, ok)
}

func TestWriteHeaders(t *testing.T) {
	l, _ := newTestLimiter(1, 1)

	rec := httptest.NewRecorder()
	WriteHeaders(rec, l.Allow("alice"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	WriteHeaders(rec, l.Allow("alice"))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	WriteHeaders(rec, Decision{Allowed: true})
	assert.Empty(t, rec.Header())
}
