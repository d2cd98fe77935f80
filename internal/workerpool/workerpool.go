package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned when a task is submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

// Pool runs tasks on a fixed set of goroutines fed by one shared queue.
type Pool struct {
	config    Config
	taskQueue chan func()

	mu     sync.RWMutex
	closed bool
	done   sync.WaitGroup
}

func New(config Config) *Pool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU()
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = config.WorkerCount * 4
	}

	p := &Pool{
		config:    config,
		taskQueue: make(chan func(), config.GlobalBuffer),
	}
	p.done.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.done.Done()
	for run := range p.taskQueue {
		run()
	}
}

// Workers returns the number of goroutines serving the pool.
func (p *Pool) Workers() int { return p.config.WorkerCount }

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()
	p.done.Wait()
}

// submit enqueues run, blocking for a free slot until ctx is done.
func (p *Pool) submit(ctx context.Context, run func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.taskQueue <- run:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Room collects the results of a batch of tasks by index, so the caller sees
// them in submission order regardless of completion order.
type Room[T any] struct {
	pool    *Pool
	results []T
	errs    []error
	wg      sync.WaitGroup
}

// NewRoom prepares a room holding size results.
func NewRoom[T any](p *Pool, size int) *Room[T] {
	return &Room[T]{
		pool:    p,
		results: make([]T, size),
		errs:    make([]error, size),
	}
}

// Submit schedules job to fill slot index. It blocks while the shared queue
// is full.
func (r *Room[T]) Submit(ctx context.Context, index int, job func(context.Context) (T, error)) error {
	r.wg.Add(1)
	err := r.pool.submit(ctx, func() {
		defer r.wg.Done()
		if err := ctx.Err(); err != nil {
			r.errs[index] = err
			return
		}
		r.results[index], r.errs[index] = job(ctx)
	})
	if err != nil {
		r.wg.Done()
	}
	return err
}

// Wait blocks until every submitted task finished and returns the results.
// The error is the one from the lowest failing index.
func (r *Room[T]) Wait() ([]T, error) {
	r.wg.Wait()
	for _, err := range r.errs {
		if err != nil {
			return nil, err
		}
	}
	return r.results, nil
}

// Map runs fn for every index in [0, n) on the pool and returns the results
// in index order. The first failure cancels the tasks that have not started.
func Map[T any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	room := NewRoom[T](p, n)
	for i := 0; i < n; i++ {
		i := i
		err := room.Submit(ctx, i, func(ctx context.Context) (T, error) {
			v, err := fn(ctx, i)
			if err != nil {
				cancel()
			}
			return v, err
		})
		if err != nil {
			if _, werr := room.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
				return nil, werr
			}
			return nil, err
		}
	}
	return room.Wait()
}
