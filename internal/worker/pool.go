package worker

import (
	"context"
	"sync"
)

// Job is a unit of work run by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job produces
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of goroutines and gathers their results
type Pool struct {
	workers   int
	jobs      chan Job
	results   []Result
	mu        sync.Mutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeJobs sync.Once
}

// NewPool creates a pool whose jobs run under ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers: workers,
		jobs:    make(chan Job, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			res := job.Execute(p.ctx)
			p.mu.Lock()
			p.results = append(p.results, res)
			p.mu.Unlock()
		}
	}
}

// Submit queues a job. It returns without queueing once the pool is shut
// down and must not be called after Wait.
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
	case p.jobs <- job:
	}
}

// Wait stops accepting jobs, waits for the queue to drain and returns the
// results in completion order
func (p *Pool) Wait() []Result {
	p.closeJobs.Do(func() { close(p.jobs) })
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

// Shutdown cancels running jobs and drops queued ones
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
