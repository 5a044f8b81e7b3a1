package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/daemon/worker"
	"github.com/gitvan/gitvan/git"
	gvtesting "github.com/gitvan/gitvan/internal/testing"
	"github.com/gitvan/gitvan/job"
	"github.com/gitvan/gitvan/logger"
	"github.com/gitvan/gitvan/receipt"
)

type harness struct {
	rt       *conf.Runtime
	runner   *git.Runner
	ec       git.Context
	watcher  *GitWatcher
	engine   *Engine
	pool     *worker.Pool
	receipts *receipt.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir, runner, ec := gvtesting.CreateTestRepo(t)
	rt := conf.TestRuntime(dir, nil)
	rt.Config.Daemon.Workers = 2

	pool := worker.New(rt)
	t.Cleanup(func() { _ = pool.Shutdown(time.Second) })

	receipts := receipt.NewStore(runner, ec, logger.Logger)
	registry := job.NewRegistry(rt)
	return &harness{
		rt:       rt,
		runner:   runner,
		ec:       ec,
		watcher:  NewGitWatcher(rt, runner, ec),
		engine:   New(rt, registry, receipts, pool, runner, ec),
		pool:     pool,
		receipts: receipts,
	}
}

func TestWatcher_FirstPollEstablishesBaseline(t *testing.T) {
	h := newHarness(t)

	signals, err := h.watcher.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signals, "baseline poll emits nothing")
}

func TestWatcher_DetectsCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.watcher.Poll(ctx)
	require.NoError(t, err)

	head := gvtesting.Commit(t, h.runner, h.ec, "src/app.js", "console.log(1)\n", "feat: add app")

	signals, err := h.watcher.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, job.SignalCommit, sig.Kind)
	assert.Equal(t, head, sig.Commit)
	assert.Contains(t, sig.Message, "feat: add app")
	assert.Equal(t, []string{"src/app.js"}, sig.ChangedPaths)
	assert.NotEmpty(t, sig.Branch)
}

func TestWatcher_DetectsTagCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.watcher.Poll(ctx)
	require.NoError(t, err)

	require.NoError(t, h.runner.Tag(ctx, h.ec, "v1.0.0"))

	signals, err := h.watcher.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, job.SignalTagCreate, signals[0].Kind)
	assert.Equal(t, "v1.0.0", signals[0].Tag)

	// The same tag never fires twice.
	signals, err = h.watcher.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestWatcher_QuietPollEmitsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.watcher.Poll(ctx)
	require.NoError(t, err)
	signals, err := h.watcher.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestCronTicker_Due(t *testing.T) {
	rt := conf.TestRuntime(t.TempDir(), nil)
	ticker := NewCronTicker(rt)

	spec, err := job.ParseCron("*/15 * * * *", time.UTC)
	require.NoError(t, err)
	jobs := []*job.Job{
		{ID: "quarterly", CronSpec: spec},
		{ID: "manual"},
	}

	onQuarter := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)
	due := ticker.Due(jobs, onQuarter)
	require.Len(t, due, 1)
	assert.Equal(t, "quarterly", due[0].ID)

	offQuarter := time.Date(2024, 3, 4, 9, 7, 0, 0, time.UTC)
	assert.Empty(t, ticker.Due(jobs, offQuarter))
}

func TestEngine_MatchBindingAndJobPredicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	gvtesting.WriteFile(t, h.rt.WorkDir, "jobs/on-release.yaml", "run: echo release\n")
	gvtesting.WriteFile(t, h.rt.WorkDir, "events/message/^release:.yaml", "job: on-release\n")
	gvtesting.WriteFile(t, h.rt.WorkDir, "jobs/on-main.yaml", "run: echo main\non:\n  branch: main\n")

	head, err := h.runner.RevParse(ctx, h.ec, "HEAD")
	require.NoError(t, err)

	sig := job.Signal{Kind: job.SignalCommit, Commit: head, Branch: "main", Message: "release: v2"}
	invs, err := h.engine.Match(ctx, sig)
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "on-main", invs[0].Job.ID)
	assert.Equal(t, "on-release", invs[1].Job.ID)

	sig.Message = "fix: typo"
	sig.Branch = "develop"
	invs, err = h.engine.Match(ctx, sig)
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestEngine_MatchSkipsUnknownBindingTarget(t *testing.T) {
	h := newHarness(t)
	gvtesting.WriteFile(t, h.rt.WorkDir, "events/branch/main.yaml", "job: ghost\n")

	invs, err := h.engine.Match(context.Background(), job.Signal{Kind: job.SignalCommit, Branch: "main"})
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestEngine_RunJobWritesReceipt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	gvtesting.WriteFile(t, h.rt.WorkDir, "jobs/greet.yaml", "run: echo hi\n")
	jobs, err := job.NewRegistry(h.rt).DiscoverJobs(h.rt.WorkDir)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	head, err := h.runner.RevParse(ctx, h.ec, "HEAD")
	require.NoError(t, err)

	sig := job.Signal{Kind: job.SignalCommit, Commit: head, Branch: "main"}
	h.engine.RunJob(ctx, job.Invocation{Job: jobs[0], Signal: sig, WorkDir: h.rt.WorkDir})

	receipts, err := h.receipts.ReadAll(ctx, head)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "greet", receipts[0].ID)
	assert.Equal(t, receipt.StatusOK, receipts[0].Status)
	assert.Equal(t, receipt.ActionJob, receipts[0].Action)
	assert.NotEmpty(t, receipts[0].Inputs["invocation"])
	assert.Equal(t, "commit", receipts[0].Inputs["signal"])
}

func TestEngine_ReceiptSuppressesRefire(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	gvtesting.WriteFile(t, h.rt.WorkDir, "jobs/greet.yaml", "run: echo hi\non:\n  branch: main\n")

	head, err := h.runner.RevParse(ctx, h.ec, "HEAD")
	require.NoError(t, err)
	sig := job.Signal{Kind: job.SignalCommit, Commit: head, Branch: "main"}

	invs, err := h.engine.Match(ctx, sig)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	h.engine.RunJob(ctx, invs[0])

	// The pair (job, commit) now has a successful receipt.
	invs, err = h.engine.Match(ctx, sig)
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestEngine_FailedJobWritesErrorReceipt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	gvtesting.WriteFile(t, h.rt.WorkDir, "jobs/broken.yaml", "run: \"false\"\n")
	jobs, err := job.NewRegistry(h.rt).DiscoverJobs(h.rt.WorkDir)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	head, err := h.runner.RevParse(ctx, h.ec, "HEAD")
	require.NoError(t, err)
	sig := job.Signal{Kind: job.SignalCommit, Commit: head, Branch: "main"}
	h.engine.RunJob(ctx, job.Invocation{Job: jobs[0], Signal: sig, WorkDir: h.rt.WorkDir})

	receipts, err := h.receipts.ReadAll(ctx, head)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, receipt.StatusError, receipts[0].Status)
	require.NotNil(t, receipts[0].Error)
	assert.Equal(t, "JobError", receipts[0].Error.Kind)
	assert.Equal(t, maxJobAttempts, receipts[0].Error.Attempt)

	// Error receipts do not suppress a retry on the next signal.
	gvtesting.WriteFile(t, h.rt.WorkDir, "events/branch/main.yaml", "job: broken\n")
	invs, err := h.engine.Match(ctx, sig)
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}
