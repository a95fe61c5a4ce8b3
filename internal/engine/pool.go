package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Do after Close.
var ErrPoolClosed = errors.New("worker pool closed")

type job struct {
	fn   func() error
	done chan error
}

// Pool runs CPU-bound work on a fixed number of goroutines so request
// handlers only wait on a channel.
type Pool struct {
	jobQueue    chan job
	workerCount int
	quit        chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
	logger      *slog.Logger
}

// NewPool starts workerCount workers sharing a queue of bufferSize jobs.
func NewPool(workerCount, bufferSize int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		jobQueue:    make(chan job, max(bufferSize, 0)),
		workerCount: max(workerCount, 1),
		quit:        make(chan struct{}),
		logger:      logger,
	}
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("started worker pool", "workers", p.workerCount)
	return p
}

// Do runs fn on a worker and returns its error. If ctx ends first Do returns
// ctx.Err() and the result of fn, if it still runs, is discarded.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.jobQueue <- j:
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
}

// Close stops the workers after their current jobs finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
		p.logger.Info("stopped worker pool")
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobQueue:
			p.logger.Debug("worker processing job", "worker_id", id)
			j.done <- p.run(j.fn)
		}
	}
}

// run calls fn, turning a panic into an error so one bad job cannot take the
// worker down.
func (p *Pool) run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "panic", r)
			err = errors.New("backtest job panicked")
		}
	}()
	return fn()
}
