package llm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Usage totals the requests made through a LimitedProvider
type Usage struct {
	Requests   int
	Failures   int
	TokensUsed int
}

// LimitedProvider caps the number of in-flight Complete calls on the wrapped
// provider and keeps running usage totals. Batch sessions share one.
type LimitedProvider struct {
	Provider

	sem *semaphore.Weighted

	mu    sync.Mutex
	usage Usage
}

// WithConcurrencyLimit wraps p so that at most n requests run at once.
// n <= 0 leaves concurrency uncapped but still records usage.
func WithConcurrencyLimit(p Provider, n int) *LimitedProvider {
	l := &LimitedProvider{Provider: p}
	if n > 0 {
		l.sem = semaphore.NewWeighted(int64(n))
	}
	return l
}

// Complete waits for a free slot, then forwards to the wrapped provider
func (l *LimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("wait for %s request slot: %w", l.Name(), err)
		}
		defer l.sem.Release(1)
	}

	resp, err := l.Provider.Complete(ctx, req)

	l.mu.Lock()
	l.usage.Requests++
	if err != nil {
		l.usage.Failures++
	} else if resp != nil {
		l.usage.TokensUsed += resp.TokensUsed
	}
	l.mu.Unlock()

	return resp, err
}

// Usage returns a snapshot of the totals so far
func (l *LimitedProvider) Usage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage
}
