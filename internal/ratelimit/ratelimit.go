// Package ratelimit bounds concurrent in-flight RPC calls shared by the
// Decoder (ABI/token-metadata fetches) and the Forecaster (bulk per-tx
// annotation). It is a counting semaphore built on a buffered channel —
// the idiomatic Go pattern for bounded concurrency — plus an optional
// golang.org/x/time/rate.Limiter in front of it for pacing calls to
// external services that have their own request-per-second ceiling
// (Sourcify, an Etherscan-style API). The two knobs are independent:
// the semaphore bounds concurrency, the pacer bounds throughput.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cdrn/memepool/internal/memerr"
	"github.com/cdrn/memepool/internal/metrics"
)

// ErrRateLimited is returned when the caller should back off per §7's
// "rate-limited" class (status 429 or a known error-message substring).
var ErrRateLimited = errors.New("rate limited")

// Limiter is a bounded pool of concurrent in-flight call slots, FIFO per
// acquisition order, with an optional external pacer.
type Limiter struct {
	slots chan struct{}
	pacer *rate.Limiter // nil when no external pacing is configured
}

// New creates a Limiter with maxInFlight concurrent slots. Submissions
// beyond that bound queue in FIFO order (channel send order).
func New(maxInFlight int) *Limiter {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Limiter{slots: make(chan struct{}, maxInFlight)}
}

// WithExternalPacing adds an additional requests-per-second ceiling,
// independent of the concurrency bound, for calls that hit a
// rate-limited third party (Sourcify, Etherscan-style APIs).
func (l *Limiter) WithExternalPacing(rps float64, burst int) *Limiter {
	l.pacer = rate.NewLimiter(rate.Limit(rps), burst)
	return l
}

// Submit runs fn with a reserved slot, blocking (in submission order)
// until one is free or ctx is done. The slot is always released, on
// success, error, or timeout, so a stuck fn cannot leak capacity.
func Submit[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if l.pacer != nil {
		if err := l.pacer.Wait(ctx); err != nil {
			return zero, err
		}
	}

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { <-l.slots }()

	result, err := fn(ctx)
	if err != nil && IsRateLimitedErr(err) {
		metrics.RateLimitedErrors.Inc()
		return zero, memerr.New(memerr.ClassRateLimited, "ratelimit", err)
	}
	return result, err
}

// InFlight reports the number of slots currently held, for metrics.
func (l *Limiter) InFlight() int { return len(l.slots) }

// Capacity reports the configured maximum concurrency.
func (l *Limiter) Capacity() int { return cap(l.slots) }

// IsRateLimitedErr does the best-effort substring/status detection the
// spec's §7 rate-limited class calls for: a 429 status or a known
// error-message substring from common JSON-RPC providers.
func IsRateLimitedErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"429", "rate limit", "too many requests"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// BackoffForRateLimit is the fixed ~1s sleep the spec prescribes when a
// caller hits the rate-limited class (§7 item 3).
const BackoffForRateLimit = time.Second
