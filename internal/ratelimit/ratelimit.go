// Package ratelimit provides the token-bucket primitives used by the
// external-client layer (one bucket per upstream client, §4.1), plus an
// in-process per-key limiter. The command/query surface's per-plot request
// limit is the cache-backed httpapi.PlotRateLimiter, not this package. Both
// primitives here are built
// on golang.org/x/time/rate, generalizing the teacher's per-IP inbound
// limiter to arbitrary string keys and to outbound blocking waits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientLimiter is a single token bucket guarding one external client.
// Refill is R per minute with burst B, per §4.1's common contract.
type ClientLimiter struct {
	limiter *rate.Limiter
}

// NewClientLimiter builds a bucket refilling at ratePerMinute per minute
// with the given burst.
func NewClientLimiter(ratePerMinute float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerMinute/60.0), burst),
	}
}

// Wait blocks until a token is available or ctx's deadline elapses, in which
// case the caller should translate the error into apperr.RateLimited.
func (c *ClientLimiter) Wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

type keyedVisitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter holds one in-process token bucket per arbitrary key (e.g. a
// plot id). Stale keys are reaped
// periodically so the map does not grow unbounded.
type KeyedLimiter struct {
	mu       sync.Mutex
	visitors map[string]*keyedVisitor
	rate     rate.Limit
	burst    int
	logger   *zap.Logger
	done     chan struct{}
	once     sync.Once
}

// NewKeyedLimiter builds a per-key limiter at rps requests/second with the
// given burst, reaping keys idle for more than 3 minutes.
func NewKeyedLimiter(rps float64, burst int, logger *zap.Logger) *KeyedLimiter {
	kl := &KeyedLimiter{
		visitors: make(map[string]*keyedVisitor),
		rate:     rate.Limit(rps),
		burst:    burst,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go kl.reap()
	return kl
}

// Close stops the background reaper. Idempotent.
func (kl *KeyedLimiter) Close() {
	kl.once.Do(func() { close(kl.done) })
}

// Allow reports whether a request for key may proceed right now.
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.visitorFor(key).Allow()
}

func (kl *KeyedLimiter) visitorFor(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	v, ok := kl.visitors[key]
	if !ok {
		limiter := rate.NewLimiter(kl.rate, kl.burst)
		kl.visitors[key] = &keyedVisitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (kl *KeyedLimiter) reap() {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			kl.mu.Lock()
			for key, v := range kl.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(kl.visitors, key)
				}
			}
			kl.mu.Unlock()
		case <-kl.done:
			return
		}
	}
}
