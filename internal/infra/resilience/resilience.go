// Package resilience guards calls to the hosted backend: bounded retries
// for idempotent reads, a circuit breaker shared by all calls, and a
// bulkhead capping concurrent outbound requests.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds the retry and concurrency limits of a backend client.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	// MaxBackoff caps a single wait. Zero leaves it uncapped.
	MaxBackoff     time.Duration
	MaxConcurrency int
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, e.g. a 4xx answer.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Backoff returns the base wait before retry number attempt (0-based):
// InitialBackoff doubled per attempt, capped at MaxBackoff.
func Backoff(cfg Config, attempt int) time.Duration {
	d := cfg.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if cfg.MaxBackoff > 0 && d >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return d
}

// RetryWithBackoff calls fn up to MaxRetries+1 times, waiting Backoff plus
// up to 50% jitter between attempts. It returns early on success, on a
// Permanent error, or when ctx is done.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(); err == nil || IsPermanent(err) || attempt >= cfg.MaxRetries {
			return err
		}

		wait := Backoff(cfg, attempt)
		if half := int64(wait / 2); half > 0 {
			wait += time.Duration(rand.Int63n(half))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// BreakerSettings tune when the circuit opens and how it recovers.
type BreakerSettings struct {
	// MinRequests is the number of calls in Window before the ratio counts.
	MinRequests  uint32
	FailureRatio float64
	Window       time.Duration
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout    time.Duration
	HalfOpenProbes uint32
}

// DefaultBreakerSettings open the circuit when 60% of at least 5 calls in
// 30s fail, and probe again after 10s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:    5,
		FailureRatio:   0.6,
		Window:         30 * time.Second,
		OpenTimeout:    10 * time.Second,
		HalfOpenProbes: 3,
	}
}

// NewCircuitBreaker creates a breaker with DefaultBreakerSettings.
func NewCircuitBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return NewCircuitBreakerWith(name, DefaultBreakerSettings(), logger)
}

// NewCircuitBreakerWith creates a breaker from s. Permanent errors count
// as successes.
func NewCircuitBreakerWith(name string, s BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenProbes,
		Interval:    s.Window,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= s.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
}

// Bulkhead is a counting semaphore limiting concurrent backend calls.
type Bulkhead struct {
	slots chan struct{}
}

// NewBulkhead returns a bulkhead with n slots. n below 1 is treated as 1.
func NewBulkhead(n int) *Bulkhead {
	return &Bulkhead{slots: make(chan struct{}, max(n, 1))}
}

// Acquire takes a slot, waiting until one frees up or ctx is done.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (b *Bulkhead) Release() {
	<-b.slots
}

// InUse returns the number of slots currently held.
func (b *Bulkhead) InUse() int {
	return len(b.slots)
}
