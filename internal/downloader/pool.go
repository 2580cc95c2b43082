package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fansync/pkg/logger"
)

// Task is one unit of work run by a pool worker
type Task func(ctx context.Context) error

// Result is the outcome of a task. Err is a *PanicError when the task
// panicked.
type Result struct {
	ID  string
	Err error
}

type job struct {
	id   string
	task Task
}

// ErrPoolClosed is returned when submitting after Wait
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool runs submitted tasks on a fixed number of workers. Wait is the
// barrier: it stops intake, blocks until every task finished and returns
// the results in completion order.
type Pool struct {
	jobQueue chan job
	wg       sync.WaitGroup
	ctx      context.Context
	logger   logger.Logger

	mu      sync.Mutex
	closed  bool
	results []Result
}

// NewPool starts numWorkers workers. Tasks receive ctx.
func NewPool(ctx context.Context, numWorkers int, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	p := &Pool{
		jobQueue: make(chan job, numWorkers*2),
		ctx:      ctx,
		logger:   log,
	}

	p.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": numWorkers,
	})
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit queues a task. It blocks while the queue is full.
func (p *Pool) Submit(id string, task Task) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}

	select {
	case p.jobQueue <- job{id: id, task: task}:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Wait closes the pool and blocks until all queued tasks finished
func (p *Pool) Wait() []Result {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for j := range p.jobQueue {
		var err error
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else {
			err = p.run(j)
		}

		res := Result{ID: j.id, Err: err}
		if err != nil {
			p.logger.DebugWithFields("Task failed", map[string]interface{}{
				"worker_id": id,
				"task":      j.id,
				"error":     err.Error(),
			})
		}

		p.mu.Lock()
		p.results = append(p.results, res)
		p.mu.Unlock()
	}
}

// run executes a task and converts a panic into an error
func (p *Pool) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: j.id, Value: r}
		}
	}()
	return j.task(p.ctx)
}

// PanicError reports a task that panicked
type PanicError struct {
	Task  string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}
