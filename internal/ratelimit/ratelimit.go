package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/amishk599/jobsync/internal/adapter"
)

// PortalLimiter enforces a minimum delay between consecutive requests to the
// same portal.
type PortalLimiter struct {
	mu        sync.Mutex
	lastCall  map[string]time.Time // key: portal name
	minDelay  time.Duration
	overrides map[string]time.Duration
}

// NewPortalLimiter creates a limiter with minDelay between calls to one portal.
func NewPortalLimiter(minDelay time.Duration) *PortalLimiter {
	return &PortalLimiter{
		lastCall:  make(map[string]time.Time),
		minDelay:  minDelay,
		overrides: make(map[string]time.Duration),
	}
}

// SetDelay overrides the minimum delay for one portal.
func (l *PortalLimiter) SetDelay(portal string, d time.Duration) {
	l.mu.Lock()
	l.overrides[portal] = d
	l.mu.Unlock()
}

func (l *PortalLimiter) delayFor(portal string) time.Duration {
	if d, ok := l.overrides[portal]; ok {
		return d
	}
	return l.minDelay
}

// Wait blocks until minDelay has passed since the last request to portal.
// Returns an error if ctx is cancelled while waiting.
func (l *PortalLimiter) Wait(ctx context.Context, portal string) error {
	l.mu.Lock()
	last, ok := l.lastCall[portal]
	now := time.Now()
	minDelay := l.delayFor(portal)

	if !ok || now.Sub(last) >= minDelay {
		l.lastCall[portal] = now
		l.mu.Unlock()
		return nil
	}

	remaining := minDelay - now.Sub(last)
	// Reserve the slot so a concurrent caller queues behind this one.
	l.lastCall[portal] = last.Add(minDelay)
	l.mu.Unlock()

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", portal, ctx.Err())
	case <-timer.C:
	}
	return nil
}

// Adapter is a decorator that waits on a shared PortalLimiter before every
// Fetch of the wrapped adapter.
type Adapter struct {
	adapter.Adapter
	limiter *PortalLimiter
}

// Wrap returns a rate-limited view of a. All adapters of one crawler should
// share the same limiter.
func Wrap(a adapter.Adapter, limiter *PortalLimiter) *Adapter {
	return &Adapter{Adapter: a, limiter: limiter}
}

// Fetch waits for the limiter, then delegates.
func (a *Adapter) Fetch(ctx context.Context, url string, h http.Header) (adapter.FetchResult, error) {
	if err := a.limiter.Wait(ctx, a.Name()); err != nil {
		return adapter.FetchResult{}, err
	}
	return a.Adapter.Fetch(ctx, url, h)
}
