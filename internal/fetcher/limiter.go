package fetcher

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a rate.Limiter that speeds up by 20% after each
// success (up to 2x the initial rate) and halves after a 429 (down to 1/4).
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at r events per second.
func NewAdaptiveLimiter(r rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(r, burst),
		initial: r,
		current: r,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(min(a.current*1.2, a.initial*2))
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(max(a.current*0.5, a.initial/4))
	zap.L().Warn("fetcher: reducing host rate after 429", zap.Float64("rate", float64(a.current)))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) setLocked(r rate.Limit) {
	a.current = r
	a.limiter.SetLimit(r)
}

// hostLimiters hands out one AdaptiveLimiter per host.
type hostLimiters struct {
	mu    sync.Mutex
	rate  rate.Limit
	hosts map[string]*AdaptiveLimiter
}

func newHostLimiters(perSecond float64) *hostLimiters {
	if perSecond <= 0 {
		perSecond = 2
	}
	return &hostLimiters{rate: rate.Limit(perSecond), hosts: make(map[string]*AdaptiveLimiter)}
}

func (h *hostLimiters) get(host string) *AdaptiveLimiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.hosts[host]
	if !ok {
		l = NewAdaptiveLimiter(h.rate, 1)
		h.hosts[host] = l
	}
	return l
}
