// Package ratelimit throttles callers with one token bucket per key.
//
// The API keys buckets by caller address so a single identity cannot flood the
// unit-of-work lock that serializes every governance operation.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter hands out tokens from per-key buckets that share one rate and burst.
type Limiter struct {
	mu      sync.Mutex
	rate    float64
	burst   float64
	buckets map[string]*tokenBucket
	now     func() time.Time
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long the caller must wait for the next token. Zero when
	// the request was allowed.
	RetryAfter time.Duration
}

// Stats exposes the current state of a bucket.
type Stats struct {
	Limit          float64 `json:"limit"`
	BurstSize      int     `json:"burstSize"`
	Available      float64 `json:"available"`
	LastRefillTime string  `json:"lastRefillTime"`
}

// New creates a limiter refilling rps tokens per second up to burst. A
// non-positive rps disables limiting; a non-positive burst defaults to the
// rate rounded up.
func New(rps float64, burst int) *Limiter {
	b := float64(burst)
	if b <= 0 {
		b = math.Max(1, math.Ceil(rps))
	}
	return &Limiter{
		rate:    rps,
		burst:   b,
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Tests use it to step time.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Enabled reports whether the limiter rejects anything at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate > 0
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) Decision {
	if !l.Enabled() {
		return Decision{Allowed: true}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = bucket
	}
	bucket.refill(now, l.rate, l.burst)
	bucket.lastSeen = now

	d := Decision{Limit: int(l.burst)}
	if bucket.tokens >= 1 {
		bucket.tokens--
		d.Allowed = true
		d.Remaining = int(bucket.tokens)
		return d
	}
	missing := 1 - bucket.tokens
	d.RetryAfter = time.Duration(missing / l.rate * float64(time.Second))
	return d
}

// Prune drops buckets that are full again and have not been used for idle.
func (l *Limiter) Prune(idle time.Duration) int {
	if !l.Enabled() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, bucket := range l.buckets {
		bucket.refill(now, l.rate, l.burst)
		if bucket.tokens >= l.burst && now.Sub(bucket.lastSeen) >= idle {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of every tracked bucket.
func (l *Limiter) Stats() map[string]Stats {
	out := make(map[string]Stats)
	if !l.Enabled() {
		return out
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, bucket := range l.buckets {
		bucket.refill(now, l.rate, l.burst)
		out[key] = Stats{
			Limit:          l.rate,
			BurstSize:      int(l.burst),
			Available:      bucket.tokens,
			LastRefillTime: bucket.lastRefill.Format(time.RFC3339),
		}
	}
	return out
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

func (tb *tokenBucket) refill(now time.Time, rate, capacity float64) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens = math.Min(capacity, tb.tokens+elapsed*rate)
		tb.lastRefill = now
	}
}

// WriteHeaders adds rate limit status headers to the response.
func WriteHeaders(w http.ResponseWriter, d Decision) {
	if d.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.Allowed {
		secs := int(math.Ceil(d.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}
