// Package scheduler executes rng node trees. Straight-line steps run on the
// current goroutine; each branch clones the state and hands the two halves
// to a shared worker pool.
package scheduler

import (
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("scheduler: pool closed")

// Submitter runs tasks asynchronously. Submit must not block on task
// completion, since tasks submit further tasks.
type Submitter interface {
	Submit(task func()) error
}

// Pool is a fixed set of workers draining an unbounded FIFO queue. It is
// created once and shared by every concurrent Run.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	size   int
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool starts size workers. size <= 0 uses runtime.NumCPU().
func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{size: size, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Info("worker pool started", zap.Int("workers", size))
	return p
}

// Submit enqueues task. It never blocks on queue capacity.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Size returns the worker count.
func (p *Pool) Size() int { return p.size }

// Close stops accepting tasks, lets the workers drain the queue and waits
// for them to exit. It must not be called from inside a task.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(id, task)
	}
}

func (p *Pool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool task panicked",
				zap.Int("worker", id),
				zap.Any("recover", r))
		}
	}()
	task()
}

// Inline runs every task on the submitting goroutine. Evaluation becomes a
// depth-first walk; useful for tests and single-threaded runs.
type Inline struct{}

func (Inline) Submit(task func()) error {
	task()
	return nil
}
