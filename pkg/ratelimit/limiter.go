package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages one rate limiter per named service (here: per platform)
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Has reports whether a limiter is registered under name
func (m *MultiLimiter) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.limiters[name]
	return ok
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// WaitIfLimited waits on the named limiter, or returns immediately when none is registered
func (m *MultiLimiter) WaitIfLimited(ctx context.Context, name string) error {
	if m == nil || !m.Has(name) {
		return nil
	}
	return m.Wait(ctx, name)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// NewPerHourLimiter creates one limiter per name from a requests-per-hour table.
// Burst is a tenth of the hourly budget, at least 1.
func NewPerHourLimiter(perHour map[string]int) *MultiLimiter {
	m := NewMultiLimiter()
	for name, n := range perHour {
		if n <= 0 {
			continue
		}
		m.AddLimiter(name, float64(n)/3600, max(n/10, 1))
	}
	return m
}

// DefaultPerHour is the fallback publish budget per platform
var DefaultPerHour = map[string]int{
	"linkedin":  25,  // ~100 posts/day member quota, keep headroom
	"twitter":   50,
	"facebook":  200,
	"instagram": 25, // 25 content publishes per rolling 24h is the hard API cap; throttle well below
	"tiktok":    20,
	"youtube":   6,
}
