// Package signal produces repository signals for the daemon and matches
// them against discovered jobs and event bindings.
//
// Two producers feed the engine: the GitWatcher polls HEAD and the tag
// refs between daemon ticks, and the CronTicker fires at minute
// boundaries. Matched signals become job invocations on the worker pool.
package signal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/git"
	"github.com/gitvan/gitvan/job"
)

// GitWatcher detects repository changes by polling. It keeps the last
// observed HEAD and tag set; each poll emits one signal per detected
// change category.
type GitWatcher struct {
	rt     *conf.Runtime
	runner *git.Runner
	ec     git.Context
	log    *zap.SugaredLogger

	lastHead string
	lastTags map[string]string
}

// NewGitWatcher creates a watcher over the repository at ec.Dir. The
// first Poll establishes the baseline and emits nothing.
func NewGitWatcher(rt *conf.Runtime, runner *git.Runner, ec git.Context) *GitWatcher {
	return &GitWatcher{
		rt:     rt,
		runner: runner,
		ec:     ec,
		log:    rt.Log.Named("watcher"),
	}
}

// Poll compares the repository against the last observed state and
// returns the signals for everything that changed since.
func (w *GitWatcher) Poll(ctx context.Context) ([]job.Signal, error) {
	head, err := w.runner.RevParse(ctx, w.ec, "HEAD")
	if err != nil {
		// An empty repository has no HEAD yet; nothing to observe.
		w.log.Debugw("HEAD not resolvable", "error", err)
		return nil, nil
	}
	tags, err := w.runner.Tags(ctx, w.ec)
	if err != nil {
		return nil, err
	}

	first := w.lastHead == "" && w.lastTags == nil
	var signals []job.Signal
	if !first {
		if head != w.lastHead {
			sig, err := w.headSignal(ctx, head)
			if err != nil {
				return nil, err
			}
			signals = append(signals, sig)
		}
		for name := range tags {
			if _, seen := w.lastTags[name]; !seen {
				signals = append(signals, w.tagSignal(ctx, name, tags[name]))
			}
		}
	}

	w.lastHead = head
	w.lastTags = tags
	return signals, nil
}

// headSignal builds the commit (or merge) signal for a HEAD move.
func (w *GitWatcher) headSignal(ctx context.Context, head string) (job.Signal, error) {
	sig := job.Signal{Kind: job.SignalCommit, Commit: head}

	if branch, err := w.runner.CurrentBranch(ctx, w.ec); err == nil {
		sig.Branch = branch
	}
	if msg, err := w.runner.LastMessage(ctx, w.ec); err == nil {
		sig.Message = msg
	}

	if merge, err := w.runner.IsMergeCommit(ctx, w.ec, head); err == nil && merge {
		sig.Kind = job.SignalMerge
	}

	// Paths changed since the last observed commit. A rewound or
	// force-moved HEAD still diffs cleanly; a vanished previous commit
	// degrades to the paths of HEAD itself.
	paths, err := w.runner.DiffNameOnly(ctx, w.ec, w.lastHead, head)
	if err != nil {
		paths, err = w.runner.ChangedPathsInCommit(ctx, w.ec, head)
		if err != nil {
			return sig, err
		}
	}
	sig.ChangedPaths = paths
	return sig, nil
}

func (w *GitWatcher) tagSignal(ctx context.Context, name, hash string) job.Signal {
	sig := job.Signal{Kind: job.SignalTagCreate, Tag: name, Commit: hash}
	if branch, err := w.runner.CurrentBranch(ctx, w.ec); err == nil {
		sig.Branch = branch
	}
	return sig
}

// Run polls on the configured interval until ctx is cancelled, passing
// each signal batch to emit.
func (w *GitWatcher) Run(ctx context.Context, emit func(job.Signal)) error {
	interval := time.Duration(w.rt.Config.Daemon.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			signals, err := w.Poll(ctx)
			if err != nil {
				w.log.Warnw("poll failed", "error", err)
				continue
			}
			for _, sig := range signals {
				emit(sig)
			}
		}
	}
}
