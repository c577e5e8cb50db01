// Package worker runs document jobs on a bounded pool of goroutines.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job produces
type Result interface {
	Err() error
}

// indexed pairs a result with the submission order of its job
type indexed struct {
	seq    int
	result Result
}

// Pool runs submitted jobs on a fixed number of workers
type Pool struct {
	workers   int
	jobs      chan indexedJob
	results   chan indexed
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.Mutex
	submitted int

	collected []indexed
	done      chan struct{}
}

type indexedJob struct {
	seq int
	job Job
}

// NewPool creates a pool bound to ctx; cancelling ctx stops the workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers: workers,
		jobs:    make(chan indexedJob, workers*2),
		results: make(chan indexed, workers*2),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start launches the workers and the result collector
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	go p.collect()
}

// collect drains results as they arrive so workers never block on a full channel
func (p *Pool) collect() {
	defer close(p.done)
	for r := range p.results {
		p.collected = append(p.collected, r)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			res := j.job.Execute(p.ctx)
			select {
			case p.results <- indexed{seq: j.seq, result: res}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job; it returns false once the pool is cancelled
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	seq := p.submitted
	p.submitted++
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- indexedJob{seq: seq, job: job}:
		return true
	}
}

// Wait closes the queue, waits for the workers and returns the results in
// submission order. Jobs dropped by cancellation have nil results.
func (p *Pool) Wait() []Result {
	close(p.jobs)
	p.wg.Wait()
	p.closeResults()
	<-p.done
	p.cancel()

	p.mu.Lock()
	out := make([]Result, p.submitted)
	p.mu.Unlock()
	for _, r := range p.collected {
		out[r.seq] = r.result
	}
	return out
}

// Shutdown cancels running jobs and stops the workers. Results of jobs
// that already finished are discarded.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.closeResults()
	<-p.done
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
