package signal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/job"
)

// CronTicker fires once per minute boundary and reports which of the
// discovered jobs' cron specs match that minute.
type CronTicker struct {
	rt  *conf.Runtime
	log *zap.SugaredLogger

	// now is swappable in tests.
	now func() time.Time
}

// NewCronTicker creates a ticker evaluating against wall-clock time.
func NewCronTicker(rt *conf.Runtime) *CronTicker {
	return &CronTicker{rt: rt, log: rt.Log.Named("cron"), now: time.Now}
}

// Due returns the jobs whose cron spec matches the given minute.
func (c *CronTicker) Due(jobs []*job.Job, t time.Time) []*job.Job {
	var due []*job.Job
	for _, j := range jobs {
		if j.CronSpec != nil && j.CronSpec.Matches(t) {
			due = append(due, j)
		}
	}
	return due
}

// Run wakes at each minute boundary until ctx is cancelled. For every
// matching job it emits one cronTick signal through fire. The jobs
// callback re-discovers on each tick so descriptor edits take effect
// without a restart.
func (c *CronTicker) Run(ctx context.Context, jobs func() []*job.Job, fire func(*job.Job, job.Signal)) error {
	for {
		tick := c.now().Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(time.Until(tick))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		due := c.Due(jobs(), tick)
		if len(due) > 0 {
			c.log.Debugw("cron tick", "at", tick, "due", len(due))
		}
		for _, j := range due {
			fire(j, job.Signal{Kind: job.SignalCronTick})
		}
	}
}
