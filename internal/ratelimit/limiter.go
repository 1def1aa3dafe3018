// Package ratelimit paces the frontier's consumer workers.
package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter combines a global token bucket with lazily created per-host buckets.
// A non-positive rate disables limiting at that level.
type Limiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	perHost   map[string]*rate.Limiter
	hostRate  rate.Limit
	hostBurst int
}

// NewLimiter creates a limiter allowing requestsPerSecond overall and
// perHostPerSecond to any single host.
func NewLimiter(requestsPerSecond, perHostPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter:   rate.NewLimiter(toLimit(requestsPerSecond), burst),
		perHost:   make(map[string]*rate.Limiter),
		hostRate:  toLimit(perHostPerSecond),
		hostBurst: burst,
	}
}

// Unlimited returns a limiter that never blocks.
func Unlimited() *Limiter {
	return NewLimiter(0, 0, 1)
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// perSecond reports an unlimited rate as 0.
func perSecond(limit rate.Limit) float64 {
	if limit == rate.Inf {
		return 0
	}
	return float64(limit)
}

// WaitURL blocks until both the global bucket and the bucket for rawURL's
// host allow a request. URLs without a parsable host only use the global bucket.
func (l *Limiter) WaitURL(ctx context.Context, rawURL string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	if l.hostRate == rate.Inf {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	return l.hostLimiter(parsed.Host).Wait(ctx)
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	hl, ok := l.perHost[host]
	if !ok {
		hl = rate.NewLimiter(l.hostRate, l.hostBurst)
		l.perHost[host] = hl
	}
	return hl
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		HostCount: len(l.perHost),
		Rate:      perSecond(l.limiter.Limit()),
		Burst:     l.limiter.Burst(),
		HostRate:  perSecond(l.hostRate),
	}
}

// LimiterStats contains rate limiter statistics. Zero rates mean unlimited.
type LimiterStats struct {
	HostCount int     `json:"host_count"`
	Rate      float64 `json:"rate"`
	Burst     int     `json:"burst"`
	HostRate  float64 `json:"host_rate"`
}
