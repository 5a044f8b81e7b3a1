package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/git"
	gvtesting "github.com/gitvan/gitvan/internal/testing"
)

func newTestDaemon(t *testing.T) (*Daemon, *git.Runner, git.Context) {
	t.Helper()
	dir, runner, ec := gvtesting.CreateTestRepo(t)
	rt := conf.TestRuntime(dir, nil)
	rt.Config.Daemon.Workers = 2
	rt.Config.Daemon.PollIntervalSeconds = 1
	rt.Config.Daemon.GraceSeconds = 2

	d, err := New(rt, runner)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop() })
	return d, runner, ec
}

func TestDaemon_Lifecycle(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	assert.Equal(t, StateStopped, d.State())

	require.NoError(t, d.Start(context.Background()))
	assert.Equal(t, StateRunning, d.State())

	require.NoError(t, d.Stop())
	assert.Equal(t, StateStopped, d.State())
}

func TestDaemon_StartTwiceFails(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	require.NoError(t, d.Start(context.Background()))

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNNING")
}

func TestDaemon_StopWhenStoppedIsNoop(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	require.NoError(t, d.Stop())
}

func TestDaemon_RunsJobOnCommitSignal(t *testing.T) {
	d, runner, ec := newTestDaemon(t)
	ctx := context.Background()
	dir := ec.Dir

	gvtesting.WriteFile(t, dir, "jobs/marker.yaml", "run: touch job-ran.marker\non:\n  pathChanged: \"src/**\"\n")

	require.NoError(t, d.Start(ctx))
	gvtesting.Commit(t, runner, ec, "src/app.js", "console.log(1)\n", "feat: trigger")

	gvtesting.WaitForFile(t, dir, "job-ran.marker", 10*time.Second)
	require.NoError(t, d.Stop())
}

func TestDaemon_Status(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	ctx := context.Background()

	s := d.Status(ctx)
	assert.Equal(t, StateStopped, s.State)
	assert.NotZero(t, s.PID)
	assert.NotEmpty(t, s.Head)

	require.NoError(t, d.Start(ctx))
	time.Sleep(1100 * time.Millisecond)

	s = d.Status(ctx)
	assert.Equal(t, StateRunning, s.State)
	assert.GreaterOrEqual(t, s.UptimeSeconds, int64(1))
	assert.Equal(t, 2, s.Workers.Workers)
}
