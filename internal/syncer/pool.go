package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/internal"
)

const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	DefaultTaskTimeout = 2 * time.Minute
)

// Task is a unit of background work. Errors are logged by the pool.
type Task struct {
	Name  string
	Owner string
	Run   func(context.Context) error
}

// Pool runs tasks on a fixed set of workers fed by a bounded queue.
type Pool struct {
	logger  *zap.Logger
	tasks   chan Task
	workers int
	timeout time.Duration

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	running sync.WaitGroup
	pending sync.WaitGroup
}

func NewPool(logger *zap.Logger, workers, queueSize int, timeout time.Duration) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Pool{
		logger:  logger,
		tasks:   make(chan Task, queueSize),
		workers: workers,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Start spawns the workers. Once ctx is done or Stop is called the pool
// rejects new tasks and drops the queued ones.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.running.Add(1)
		go p.work(ctx)
	}
	go func() {
		<-ctx.Done()
		p.shutdown()
	}()
}

// TryEnqueue queues t without blocking. It returns false when the queue is
// full or the pool is stopped.
func (p *Pool) TryEnqueue(t Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.logger.Warn("pool stopped, dropping task", zap.String("task", t.Name), internal.OwnerField(t.Owner))
		return false
	}

	p.pending.Add(1)
	select {
	case p.tasks <- t:
		return true
	default:
		p.pending.Done()
		p.logger.Warn("queue full, dropping task", zap.String("task", t.Name), internal.OwnerField(t.Owner))
		return false
	}
}

// Wait blocks until every queued task has run, including tasks queued by
// running tasks. It also returns once the pool shut down and dropped its
// queue.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stop cancels running tasks, waits for the workers and drops whatever is
// left in the queue.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		stopped := p.stopped
		p.stopped = true
		p.mu.Unlock()
		if !stopped {
			p.drain()
		}
		return
	}
	p.cancel()
	p.mu.Unlock()
	<-p.done
}

func (p *Pool) shutdown() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.running.Wait()
	if n := p.drain(); n > 0 {
		p.logger.Warn("pool stopped, dropped queued tasks", zap.Int("count", n))
	}
	close(p.done)
}

func (p *Pool) drain() int {
	n := 0
	for {
		select {
		case <-p.tasks:
			p.pending.Done()
			n++
		default:
			return n
		}
	}
}

func (p *Pool) Depth() int {
	return len(p.tasks)
}

func (p *Pool) Capacity() int {
	return cap(p.tasks)
}

func (p *Pool) work(ctx context.Context) {
	defer p.running.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case t := <-p.tasks:
			p.run(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, t Task) {
	defer p.pending.Done()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.Run(ctx)
	}()

	fields := []zap.Field{
		zap.String("task", t.Name),
		internal.OwnerField(t.Owner),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		p.logger.Warn("task failed", append(fields, zap.Error(err))...)
		return
	}
	p.logger.Debug("task done", fields...)
}
