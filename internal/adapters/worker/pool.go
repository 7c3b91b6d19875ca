package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/delaycast/pkg/logger"
	"github.com/okian/delaycast/pkg/metrics"
)

// Job computes item i of a fan-out. Jobs write their result into a slot
// owned by index i, so completion order never affects the output.
type Job func(ctx context.Context, i int) error

// Pool bounds the number of goroutines used by Run. It holds no goroutines
// between calls and is safe for concurrent use.
type Pool struct {
	size    int
	name    string
	logger  logger.Logger
	metrics *metrics.Manager
}

// New creates a pool running at most size jobs at once. A size below one
// means runtime.NumCPU().
func New(size int, opts ...Option) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		size:    size,
		name:    "pool",
		logger:  logger.Nop(),
		metrics: metrics.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named(p.name)
	return p
}

// Size returns the concurrency limit.
func (p *Pool) Size() int { return p.size }

// Run executes job for every index in [0,n) and returns the error of the
// lowest failing index. Started jobs are never cancelled by a sibling's
// failure, so the reported error does not depend on scheduling; once a job
// has failed, indices not yet started are skipped.
func (p *Pool) Run(ctx context.Context, n int, job Job) error {
	if n <= 0 {
		return nil
	}
	errs := make([]error, n)
	var failed atomic.Bool
	var g errgroup.Group
	g.SetLimit(p.size)
	for i := range n {
		if failed.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if errs[i] = p.exec(ctx, i, job); errs[i] != nil {
				failed.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("job %d: %w", i, err)
		}
	}
	return ctx.Err()
}

func (p *Pool) exec(ctx context.Context, i int, job Job) (err error) {
	start := time.Now()
	p.metrics.WorkerStarted()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		p.metrics.WorkerFinished(float64(time.Since(start).Microseconds())/1000, err)
		if err != nil {
			p.logger.Debug(ctx, "job failed", logger.Int("index", i), logger.Error(err))
		}
	}()
	return job(ctx, i)
}
