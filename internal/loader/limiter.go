package loader

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per host
type HostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewHostLimiter creates a limiter; requestsPerSecond <= 0 disables limiting
func NewHostLimiter(requestsPerSecond float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 5
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     limit,
		burst:    burst,
	}
}

// Wait blocks until a request to rawURL's host is allowed, then waits out
// any extra delay such as a robots.txt crawl delay
func (l *HostLimiter) Wait(ctx context.Context, rawURL string, extra time.Duration) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if err := l.limiter(parsed.Host).Wait(ctx); err != nil {
		return err
	}

	if extra > 0 {
		timer := time.NewTimer(extra)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = lim
	}
	return lim
}
