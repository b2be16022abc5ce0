package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSink = errors.New("sink down")

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time { return c.t }

func newTestBreaker(cfg Config) (*Breaker, *manualClock) {
	clk := &manualClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(cfg).WithClock(clk.now), clk
}

func fail() error { return errSink }
func ok() error   { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 3, Timeout: time.Minute})

	assert.ErrorIs(t, b.Do(fail), errSink)
	assert.ErrorIs(t, b.Do(fail), errSink)
	require.NoError(t, b.Do(ok))
	assert.Equal(t, StateClosed, b.State())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(fail), errSink)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clk := newTestBreaker(Config{MaxFailures: 1, Timeout: time.Minute})

	assert.ErrorIs(t, b.Do(fail), errSink)
	require.Equal(t, StateOpen, b.State())

	clk.t = clk.t.Add(time.Minute)
	assert.ErrorIs(t, b.Do(fail), errSink)
	assert.Equal(t, StateOpen, b.State(), "failed probe reopens")
	assert.ErrorIs(t, b.Do(ok), ErrOpen)

	clk.t = clk.t.Add(time.Minute)
	require.NoError(t, b.Do(ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_LimitsConcurrentProbes(t *testing.T) {
	b, clk := newTestBreaker(Config{MaxFailures: 1, Timeout: time.Second, HalfOpenProbes: 1})
	assert.ErrorIs(t, b.Do(fail), errSink)
	clk.t = clk.t.Add(time.Second)

	err := b.Do(func() error {
		assert.Equal(t, StateHalfOpen, b.State())
		assert.ErrorIs(t, b.Do(ok), ErrOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_DefaultsAndStats(t *testing.T) {
	b, _ := newTestBreaker(Config{})
	for i := 0; i < DefaultConfig().MaxFailures-1; i++ {
		_ = b.Do(fail)
	}
	stats := b.Stats()
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, DefaultConfig().MaxFailures-1, stats.Failures)
	assert.Empty(t, stats.OpenUntil)

	_ = b.Do(fail)
	stats = b.Stats()
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, "2026-03-01T12:00:30Z", stats.OpenUntil)
}
