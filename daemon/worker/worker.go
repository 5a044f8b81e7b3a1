// Package worker provides the daemon's bounded execution pool.
//
// A fixed number of goroutine workers drain a bounded pending queue.
// Submissions carrying the same key coalesce: the first acquires the key,
// later ones wait and observe the first execution's result. Each execution
// runs under a deadline; on expiry its context is cancelled and the caller
// sees JobTimeout.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
)

// State is the pool lifecycle phase.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

// Task is one unit of work. Fn must honor ctx cancellation; the pool
// enforces Timeout (falling back to the configured job timeout) through
// that context.
type Task struct {
	Key     string
	Timeout time.Duration
	Fn      func(ctx context.Context) (any, error)
}

// Result is the outcome of one execution. Err carries execution failures
// (including JobTimeout); submission failures surface as Submit's error
// instead. Shared marks results observed from a coalesced execution.
type Result struct {
	Value    any
	Err      error
	Duration time.Duration
	Shared   bool
}

type submission struct {
	task Task
	done chan *Result
}

// Pool runs tasks on a fixed set of workers over a bounded queue.
type Pool struct {
	rt  *conf.Runtime
	log *zap.SugaredLogger

	tasks chan *submission
	quit  chan struct{}
	sf    singleflight.Group
	wg    sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu    sync.Mutex
	state State

	inFlight  atomic.Int64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Stats is a point-in-time snapshot for the daemon status output.
type Stats struct {
	Workers    int    `json:"workers"`
	QueueDepth int    `json:"queue_depth"`
	InFlight   int    `json:"in_flight"`
	Processed  uint64 `json:"processed"`
	Failed     uint64 `json:"failed"`
}

// New creates and starts a pool sized from the daemon configuration.
func New(rt *conf.Runtime) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		rt:         rt,
		log:        rt.Log.Named("workers"),
		tasks:      make(chan *submission, rt.Config.Daemon.QueueSize),
		quit:       make(chan struct{}),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	n := rt.Config.Daemon.Workers
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Debugw("worker pool started", "workers", n, "queue", cap(p.tasks))
	return p
}

// Submit enqueues the task and waits for its result. A non-empty key
// serializes with other submissions of the same key: at most one keyed
// execution is in flight, and waiters observe its result with Shared set.
// ctx bounds the wait for queue space and for the result; the task itself
// runs under its own deadline.
func (p *Pool) Submit(ctx context.Context, t Task) (*Result, error) {
	if t.Fn == nil {
		return nil, errors.New("task has no function")
	}
	if p.State() != StateRunning {
		return nil, &PoolClosed{}
	}

	if t.Key == "" {
		return p.enqueue(ctx, t)
	}

	v, err, shared := p.sf.Do(t.Key, func() (any, error) {
		return p.enqueue(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*Result)
	if shared {
		dup := *res
		dup.Shared = true
		return &dup, nil
	}
	return res, nil
}

func (p *Pool) enqueue(ctx context.Context, t Task) (*Result, error) {
	sub := &submission{task: t, done: make(chan *Result, 1)}

	select {
	case p.tasks <- sub:
	case <-p.quit:
		return nil, &PoolClosed{}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-sub.done:
		return res, nil
	case <-ctx.Done():
		// The task stays queued and will still run; only the wait ends.
		return nil, ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case sub := <-p.tasks:
			sub.done <- p.run(sub.task)
		}
	}
}

func (p *Pool) run(t Task) *Result {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = time.Duration(p.rt.Config.Daemon.JobTimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(p.baseCtx, timeout)
	defer cancel()

	p.inFlight.Add(1)
	start := time.Now()
	value, err := t.Fn(ctx)
	elapsed := time.Since(start)
	p.inFlight.Add(-1)
	p.processed.Add(1)

	// Only the task's own deadline error becomes a JobTimeout; a failure
	// for an unrelated reason keeps its cause even when the deadline has
	// passed by the time the task returns.
	if errors.Is(err, context.DeadlineExceeded) {
		err = &JobTimeout{Key: t.Key, Timeout: timeout}
	}
	if err != nil {
		p.failed.Add(1)
		p.log.Warnw("task failed", "key", t.Key, "duration", elapsed, "error", err)
	}
	return &Result{Value: value, Err: err, Duration: elapsed}
}

// Shutdown stops accepting submissions, waits for in-flight tasks up to
// grace, then cancels whatever is still running. Queued tasks that never
// started are rejected with PoolClosed. Safe to call more than once.
func (p *Pool) Shutdown(grace time.Duration) error {
	p.mu.Lock()
	switch p.state {
	case StateStopped:
		p.mu.Unlock()
		return nil
	case StateRunning:
		p.state = StateStopping
		close(p.quit)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(grace):
		p.log.Warnw("grace deadline reached, cancelling in-flight jobs", "grace", grace)
		p.baseCancel()
		<-done
		err = errors.Newf("shutdown exceeded %s grace, in-flight jobs were cancelled", grace)
	}
	p.baseCancel()
	p.rejectQueued()

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()
	p.log.Debugw("worker pool stopped", "processed", p.processed.Load(), "failed", p.failed.Load())
	return err
}

// rejectQueued fails every submission still sitting in the queue so its
// waiter does not hang.
func (p *Pool) rejectQueued() {
	for {
		select {
		case sub := <-p.tasks:
			sub.done <- &Result{Err: &PoolClosed{}}
		default:
			return
		}
	}
}

// State returns the current lifecycle phase.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats snapshots pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:    p.rt.Config.Daemon.Workers,
		QueueDepth: len(p.tasks),
		InFlight:   int(p.inFlight.Load()),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
	}
}
