package signal

import (
	"context"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/daemon/worker"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/git"
	"github.com/gitvan/gitvan/job"
	"github.com/gitvan/gitvan/receipt"
)

// receiptKey serializes notes writes across workers.
const receiptKey = "notes:" + receipt.NotesRef

// maxJobAttempts bounds retries of a failing job run. Timeouts and
// cancellations are never retried.
const maxJobAttempts = 3

// Engine matches signals against discovered jobs and event bindings and
// dispatches the resulting invocations onto the worker pool. Every run
// ends in a receipt; a successful receipt for (jobId, commit) suppresses
// re-dispatch of the same pair.
type Engine struct {
	rt       *conf.Runtime
	registry *job.Registry
	receipts *receipt.Store
	pool     *worker.Pool
	runner   *git.Runner
	ec       git.Context
	log      *zap.SugaredLogger
}

// New creates an engine over the repository at ec.Dir.
func New(rt *conf.Runtime, registry *job.Registry, receipts *receipt.Store, pool *worker.Pool, runner *git.Runner, ec git.Context) *Engine {
	return &Engine{
		rt:       rt,
		registry: registry,
		receipts: receipts,
		pool:     pool,
		runner:   runner,
		ec:       ec,
		log:      rt.Log.Named("signals"),
	}
}

// Match returns the invocations a signal produces: one per event binding
// whose predicate matches, plus one per job whose own `on` predicate
// matches. Pairs already receipted on the signal's commit are dropped.
func (e *Engine) Match(ctx context.Context, sig job.Signal) ([]job.Invocation, error) {
	jobs, err := e.registry.DiscoverJobs(e.rt.WorkDir)
	if err != nil {
		return nil, err
	}
	bindings, err := e.registry.DiscoverEvents(e.rt.WorkDir)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*job.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	matched := map[string]*job.Job{}
	for _, b := range bindings {
		if !b.Matches(sig) {
			continue
		}
		j, ok := byID[b.JobID]
		if !ok {
			e.log.Warnw("event binding names unknown job", "binding", b.Path, "job", b.JobID)
			continue
		}
		matched[j.ID] = j
	}
	for _, j := range jobs {
		if j.On != nil && j.On.Matches(sig) {
			matched[j.ID] = j
		}
	}

	ids := make([]string, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var invs []job.Invocation
	for _, id := range ids {
		if sig.Commit != "" {
			fired, err := e.receipts.Has(ctx, sig.Commit, id)
			if err != nil {
				return nil, err
			}
			if fired {
				e.log.Debugw("already fired, skipping", "job", id, "commit", sig.Commit)
				continue
			}
		}
		invs = append(invs, job.Invocation{Job: matched[id], Signal: sig, WorkDir: e.rt.WorkDir})
	}
	return invs, nil
}

// Dispatch matches the signal and runs every resulting invocation.
func (e *Engine) Dispatch(ctx context.Context, sig job.Signal) {
	invs, err := e.Match(ctx, sig)
	if err != nil {
		e.log.Errorw("matching signal failed", "kind", sig.Kind, "error", err)
		return
	}
	for _, inv := range invs {
		e.RunJob(ctx, inv)
	}
}

// RunJob executes one invocation on the pool, keyed by job id so a job
// never runs against itself, and writes the terminal receipt.
func (e *Engine) RunJob(ctx context.Context, inv job.Invocation) {
	j := inv.Job
	invocationID := uuid.NewString()
	timeout := j.Timeout(time.Duration(e.rt.Config.Daemon.JobTimeoutSeconds) * time.Second)

	var attempt int
	res, err := e.pool.Submit(ctx, worker.Task{
		Key:     "job:" + j.ID,
		Timeout: timeout,
		Fn: func(taskCtx context.Context) (any, error) {
			out, runErr := e.runWithRetry(taskCtx, inv, &attempt)
			return out, runErr
		},
	})
	if err != nil {
		e.log.Errorw("job submission failed", "job", j.ID, "error", err)
		return
	}
	if res.Shared {
		// A concurrent signal already ran this job; its receipt covers us.
		return
	}
	e.writeReceipt(ctx, inv, invocationID, attempt, res)
}

// runWithRetry runs the handler, retrying failures with exponential
// backoff. Cancellation and deadline expiry end the attempt loop.
func (e *Engine) runWithRetry(ctx context.Context, inv job.Invocation, attempt *int) (string, error) {
	h, err := e.registry.Handler(inv.Job.Handler)
	if err != nil {
		return "", backoff.Permanent(err)
	}

	var out string
	op := func() error {
		*attempt++
		var runErr error
		out, runErr = h.Run(ctx, inv)
		if runErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(runErr)
		}
		e.log.Warnw("job attempt failed", "job", inv.Job.ID, "attempt", *attempt, "error", runErr)
		return runErr
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxJobAttempts-1), ctx)
	return out, backoff.Retry(op, policy)
}

// writeReceipt records the run outcome on the commit that produced it.
// Writes serialize through a pool key so concurrent workers never race
// the notes ref; during drain the store's own lock suffices.
func (e *Engine) writeReceipt(ctx context.Context, inv job.Invocation, invocationID string, attempt int, res *worker.Result) {
	commit := inv.Signal.Commit
	if commit == "" {
		head, err := e.runner.RevParse(ctx, e.ec, "HEAD")
		if err != nil {
			e.log.Debugw("no HEAD for receipt, skipping", "job", inv.Job.ID)
			return
		}
		commit = head
	}

	r := &receipt.Receipt{
		Role:      receipt.RoleReceipt,
		ID:        inv.Job.ID,
		Status:    receipt.StatusOK,
		Action:    receipt.ActionJob,
		Commit:    commit,
		Timestamp: e.runner.NowISO(),
		Inputs: map[string]any{
			"invocation": invocationID,
			"signal":     string(inv.Signal.Kind),
		},
	}
	if inv.Signal.Tag != "" {
		r.Inputs["tag"] = inv.Signal.Tag
	}
	if res.Err != nil {
		r.Status = receipt.StatusError
		r.Error = &receipt.ErrorInfo{
			Kind:    errorKind(res.Err),
			Message: res.Err.Error(),
			Attempt: attempt,
		}
	}

	write := func(wctx context.Context) (any, error) {
		return nil, e.receipts.Write(wctx, commit, r)
	}
	wres, err := e.pool.Submit(ctx, worker.Task{Key: receiptKey, Timeout: 30 * time.Second, Fn: write})
	if err == nil {
		err = wres.Err
	}
	var closed *worker.PoolClosed
	if errors.As(err, &closed) {
		_, err = write(ctx)
	}
	if err != nil {
		e.log.Errorw("writing job receipt failed", "job", inv.Job.ID, "commit", commit, "error", err)
	}
}

func errorKind(err error) string {
	var timeout *worker.JobTimeout
	if errors.As(err, &timeout) {
		return "JobTimeout"
	}
	return "JobError"
}
