// Package applier materializes a resolved pack onto a target working
// tree. Application is idempotent: a content fingerprint is computed up
// front, looked up in the receipt store, and recorded in the receipt the
// applier writes for every terminal state.
package applier

import (
	"context"
	"os/exec"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/git"
	"github.com/gitvan/gitvan/pack"
	"github.com/gitvan/gitvan/receipt"
	"github.com/gitvan/gitvan/tmpl"
	"github.com/gitvan/gitvan/version"
)

// AppliedItem records one successfully materialized artifact.
type AppliedItem struct {
	Action string `json:"action"` // template, file, job, event, merge
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // write, skip, merge
}

// Result is the outcome of one pack application.
type Result struct {
	Status      receipt.Status
	Applied     []AppliedItem
	Errors      []string
	Fingerprint string
}

// ConstraintUnsatisfied is returned when a pack's requires block cannot be
// met by this runtime.
type ConstraintUnsatisfied struct {
	Pack   string
	Reason string
}

func (e *ConstraintUnsatisfied) Error() string {
	return "pack " + e.Pack + ": " + e.Reason
}

// Applier applies packs to one target repository.
type Applier struct {
	rt       *conf.Runtime
	renderer *tmpl.Renderer
	receipts *receipt.Store
	runner   *git.Runner
	ec       git.Context
	log      *zap.SugaredLogger
}

// New creates an applier for the repository at targetDir. The receipt
// store must address the same repository.
func New(rt *conf.Runtime, renderer *tmpl.Renderer, receipts *receipt.Store, runner *git.Runner, targetDir string) *Applier {
	return &Applier{
		rt:       rt,
		renderer: renderer,
		receipts: receipts,
		runner:   runner,
		ec:       git.Context{Dir: targetDir},
		log:      rt.Log.Named("applier"),
	}
}

// Apply runs the full application state machine for the pack at packDir:
// constraints, input resolution, fingerprint lookup, then materialization.
// A receipt is written for every terminal state; only the APPLYING phase
// touches the target tree.
func (a *Applier) Apply(ctx context.Context, packDir string, supplied map[string]any) (*Result, error) {
	m, err := pack.Load(packDir)
	if err != nil {
		return nil, err
	}
	log := a.log.With("pack", m.ID)

	if err := a.checkConstraints(m); err != nil {
		return nil, err
	}

	inputs, err := pack.ResolveInputs(m.Inputs, supplied)
	if err != nil {
		return nil, err
	}

	fingerprint, err := m.Fingerprint(packDir)
	if err != nil {
		return nil, err
	}

	applied, err := a.receipts.HasFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if applied {
		log.Infow("pack already applied, skipping", "fingerprint", fingerprint[:12])
		res := &Result{Status: receipt.StatusSkip, Fingerprint: fingerprint}
		return res, a.writeReceipt(ctx, m, res, inputs)
	}

	lock, err := acquireLock(a.ec.Dir)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	res := a.applyItems(ctx, m, packDir, inputs)
	res.Fingerprint = fingerprint

	log.Infow("pack applied",
		"status", res.Status, "items", len(res.Applied), "errors", len(res.Errors))
	return res, a.writeReceipt(ctx, m, res, inputs)
}

// checkConstraints verifies the requires block: the running GitVan version
// and the presence of required tools on PATH.
func (a *Applier) checkConstraints(m *pack.Manifest) error {
	if rng := m.Requires.GitVan; rng != "" {
		c, err := semver.NewConstraint(rng)
		if err != nil {
			return &ConstraintUnsatisfied{Pack: m.ID, Reason: "invalid gitvan range " + rng}
		}
		if v, err := semver.NewVersion(version.Version); err == nil && !c.Check(v) {
			return &ConstraintUnsatisfied{
				Pack:   m.ID,
				Reason: "requires gitvan " + rng + ", running " + version.Version,
			}
		}
		// Dev builds carry a non-semver version; the range is not enforceable.
	}
	for _, tool := range m.Requires.Tools {
		if _, err := exec.LookPath(tool); err != nil {
			return &ConstraintUnsatisfied{Pack: m.ID, Reason: "required tool not on PATH: " + tool}
		}
	}
	return nil
}

// applyItems materializes provides.* in the fixed order templates, files,
// jobs, events, merges. Item failures are collected; any failure alongside
// successes yields PARTIAL.
func (a *Applier) applyItems(ctx context.Context, m *pack.Manifest, packDir string, inputs map[string]any) *Result {
	res := &Result{}
	fail := func(err error) {
		res.Errors = append(res.Errors, err.Error())
		a.log.Warnw("item failed", "pack", m.ID, "error", err)
	}

	for _, item := range m.Provides.Templates {
		if done, err := a.applyTemplate(ctx, packDir, item, inputs); err != nil {
			fail(err)
		} else {
			res.Applied = append(res.Applied, done)
		}
	}
	for _, item := range m.Provides.Files {
		if done, err := a.applyFile(packDir, item); err != nil {
			fail(err)
		} else {
			res.Applied = append(res.Applied, done)
		}
	}
	for _, item := range m.Provides.Jobs {
		if done, err := a.applyJob(packDir, item); err != nil {
			fail(err)
		} else {
			res.Applied = append(res.Applied, done)
		}
	}
	for _, item := range m.Provides.Events {
		if done, err := a.applyEvent(packDir, item); err != nil {
			fail(err)
		} else {
			res.Applied = append(res.Applied, done)
		}
	}
	for _, item := range m.Provides.Merges {
		if done, err := a.applyMerge(item); err != nil {
			fail(err)
		} else {
			res.Applied = append(res.Applied, done)
		}
	}

	switch {
	case len(res.Errors) == 0:
		res.Status = receipt.StatusOK
	case len(res.Applied) > 0:
		res.Status = receipt.StatusPartial
	default:
		res.Status = receipt.StatusError
	}
	return res
}

// writeReceipt records the terminal state against the target's HEAD. A
// target without commits gets no receipt, which a fresh scaffold tolerates.
func (a *Applier) writeReceipt(ctx context.Context, m *pack.Manifest, res *Result, inputs map[string]any) error {
	commit, err := a.runner.RevParse(ctx, a.ec, "HEAD")
	if err != nil {
		a.log.Debugw("no HEAD to attach receipt to", "pack", m.ID, "error", err)
		return nil
	}

	r := &receipt.Receipt{
		Role:        receipt.RoleReceipt,
		ID:          m.ID,
		Status:      res.Status,
		Action:      receipt.ActionApply,
		Fingerprint: res.Fingerprint,
		Commit:      commit,
		Timestamp:   a.runner.NowISO(),
		Inputs:      inputs,
	}
	if res.Status == receipt.StatusError || res.Status == receipt.StatusPartial {
		msg := "item failures"
		if len(res.Errors) > 0 {
			msg = res.Errors[0]
		}
		r.Error = &receipt.ErrorInfo{Kind: "FileSystemError", Message: msg}
	}
	if err := a.receipts.Write(ctx, commit, r); err != nil {
		return errors.Wrapf(err, "recording receipt for %s", m.ID)
	}
	return nil
}

// targetPath resolves rel under the target dir, rejecting anything that
// escapes it.
func (a *Applier) targetPath(rel string) (string, error) {
	return securePath(a.ec.Dir, rel)
}

func (a *Applier) jobsDir() string {
	return a.rt.Config.Daemon.JobsDir
}

func (a *Applier) eventsDir() string {
	return a.rt.Config.Daemon.EventsDir
}

// packPath resolves a provides src under the pack dir with the same
// escape check; manifests must not read outside their own tree.
func packPath(packDir, sub, src string) (string, error) {
	return securePath(filepath.Join(packDir, sub), src)
}
