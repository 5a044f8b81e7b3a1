// Package daemon runs the GitVan automation loop: it watches the
// repository and the clock, turns changes into signals, and executes the
// matching jobs on a bounded worker pool, writing a receipt per run.
package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/daemon/signal"
	"github.com/gitvan/gitvan/daemon/worker"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/git"
	"github.com/gitvan/gitvan/job"
	"github.com/gitvan/gitvan/pack/cache"
	"github.com/gitvan/gitvan/receipt"
)

// State is the daemon lifecycle phase.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateDraining State = "DRAINING"
)

// Daemon wires the signal producers, the matching engine, and the worker
// pool over one repository.
type Daemon struct {
	rt       *conf.Runtime
	runner   *git.Runner
	ec       git.Context
	log      *zap.SugaredLogger
	registry *job.Registry
	receipts *receipt.Store
	cache    *cache.Cache

	pool    *worker.Pool
	engine  *signal.Engine
	watcher *signal.GitWatcher
	ticker  *signal.CronTicker

	confWatcher *conf.Watcher

	mu        sync.Mutex
	state     State
	startedAt time.Time
	cancel    context.CancelFunc
	loops     sync.WaitGroup
	dispatch  sync.WaitGroup
}

// New assembles a daemon for the repository at rt.WorkDir.
func New(rt *conf.Runtime, runner *git.Runner) (*Daemon, error) {
	c, err := cache.New(rt.Config, rt.Log)
	if err != nil {
		return nil, err
	}
	ec := git.Context{Dir: rt.WorkDir}
	registry := job.NewRegistry(rt)
	receipts := receipt.NewStore(runner, ec, rt.Log)

	return &Daemon{
		rt:       rt,
		runner:   runner,
		ec:       ec,
		log:      rt.Log.Named("daemon"),
		registry: registry,
		receipts: receipts,
		cache:    c,
		watcher:  signal.NewGitWatcher(rt, runner, ec),
		ticker:   signal.NewCronTicker(rt),
		state:    StateStopped,
	}, nil
}

// Registry exposes the handler registry so callers can add handlers
// before Start.
func (d *Daemon) Registry() *job.Registry { return d.registry }

// Start transitions STOPPED -> STARTING -> RUNNING and launches the
// producers. It returns once the daemon is running; the loops stop when
// Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateStopped {
		state := d.state
		d.mu.Unlock()
		return errors.Newf("daemon is %s, not stopped", state)
	}
	d.state = StateStarting
	d.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)

	d.pool = worker.New(d.rt)
	d.engine = signal.New(d.rt, d.registry, d.receipts, d.pool, d.runner, d.ec)
	d.cache.StartCompaction(time.Duration(d.rt.Config.Cache.TTLSeconds) * time.Second)

	// Baseline before the loop so startup state never fires signals.
	if _, err := d.watcher.Poll(loopCtx); err != nil {
		d.log.Warnw("initial poll failed", "error", err)
	}

	d.loops.Add(2)
	go func() {
		defer d.loops.Done()
		_ = d.watcher.Run(loopCtx, func(sig job.Signal) {
			d.dispatch.Add(1)
			go func() {
				defer d.dispatch.Done()
				d.engine.Dispatch(loopCtx, sig)
			}()
		})
	}()
	go func() {
		defer d.loops.Done()
		_ = d.ticker.Run(loopCtx, d.discoverJobs, func(j *job.Job, sig job.Signal) {
			d.dispatch.Add(1)
			go func() {
				defer d.dispatch.Done()
				d.engine.RunJob(loopCtx, job.Invocation{Job: j, Signal: sig, WorkDir: d.rt.WorkDir})
			}()
		})
	}()

	d.startConfigWatch()

	d.mu.Lock()
	d.state = StateRunning
	d.startedAt = time.Now()
	d.cancel = cancel
	d.mu.Unlock()
	d.log.Infow("daemon running",
		"workers", d.rt.Config.Daemon.Workers,
		"poll_interval_s", d.rt.Config.Daemon.PollIntervalSeconds)
	return nil
}

func (d *Daemon) discoverJobs() []*job.Job {
	jobs, err := d.registry.DiscoverJobs(d.rt.WorkDir)
	if err != nil {
		d.log.Warnw("job discovery failed", "error", err)
		return nil
	}
	return jobs
}

// startConfigWatch hot-reloads daemon settings from the config file.
// Missing config files are fine; most setups run on defaults.
func (d *Daemon) startConfigWatch() {
	path := conf.FilePath(d.rt.WorkDir)
	w, err := conf.NewWatcher(path, d.rt.Log)
	if err != nil {
		d.log.Debugw("config watch disabled", "path", path, "error", err)
		return
	}
	w.OnReload(func(cfg *conf.Config) error {
		old := d.rt.Config.Daemon
		d.rt.Config.Daemon.JobTimeoutSeconds = cfg.Daemon.JobTimeoutSeconds
		d.rt.Config.Daemon.GraceSeconds = cfg.Daemon.GraceSeconds
		d.rt.Config.Daemon.Timezone = cfg.Daemon.Timezone
		if cfg.Daemon.Workers != old.Workers || cfg.Daemon.QueueSize != old.QueueSize {
			d.log.Infow("worker pool size change applies on next daemon start",
				"workers", cfg.Daemon.Workers, "queue_size", cfg.Daemon.QueueSize)
		}
		return nil
	})
	w.Start()
	d.confWatcher = w
}

// Stop transitions RUNNING -> DRAINING -> STOPPED: producers stop first,
// in-flight dispatches finish, then the pool drains under the configured
// grace deadline.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if d.state != StateRunning {
		state := d.state
		d.mu.Unlock()
		if state == StateStopped {
			return nil
		}
		return errors.Newf("daemon is %s, not running", state)
	}
	d.state = StateDraining
	cancel := d.cancel
	d.mu.Unlock()
	d.log.Infow("daemon draining")

	cancel()
	d.loops.Wait()
	d.dispatch.Wait()

	if d.confWatcher != nil {
		d.confWatcher.Stop()
		d.confWatcher = nil
	}
	grace := time.Duration(d.rt.Config.Daemon.GraceSeconds) * time.Second
	err := d.pool.Shutdown(grace)
	d.cache.Stop()

	d.mu.Lock()
	d.state = StateStopped
	d.mu.Unlock()
	d.log.Infow("daemon stopped")
	return err
}

// State returns the current lifecycle phase.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
