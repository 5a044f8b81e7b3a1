package applier

import (
	"context"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"

	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/pack"
	"github.com/gitvan/gitvan/tmpl"
	"github.com/gitvan/gitvan/version"
)

// applyTemplate renders templates/<src> and writes it atomically to the
// target. Front matter merges into the render context alongside inputs
// and the runtime block.
func (a *Applier) applyTemplate(ctx context.Context, packDir string, item pack.TemplateItem, inputs map[string]any) (AppliedItem, error) {
	src, err := packPath(packDir, "templates", item.Src)
	if err != nil {
		return AppliedItem{}, err
	}
	dst, err := a.targetPath(item.Target)
	if err != nil {
		return AppliedItem{}, err
	}

	if item.Mode == pack.ModeSkip {
		if _, err := os.Stat(dst); err == nil {
			return skipped("template", item.Src, item.Target), nil
		}
	}

	raw, err := os.ReadFile(src)
	if err != nil {
		return AppliedItem{}, errors.Wrapf(err, "reading template %s", item.Src)
	}

	frontMatter, body, err := tmpl.SplitFrontMatter(string(raw))
	if err != nil {
		return AppliedItem{}, errors.Wrapf(err, "template %s", item.Src)
	}

	data := tmpl.Sanitize(inputs)
	data["inputs"] = tmpl.Sanitize(inputs)
	if frontMatter != nil {
		data["frontMatter"] = frontMatter
	}
	data["__system"] = map[string]any{
		"target":  item.Target,
		"version": version.Version,
	}

	out, err := a.renderer.Render(ctx, item.Src, body, data)
	if err != nil {
		return AppliedItem{}, err
	}

	mode := os.FileMode(0o644)
	if item.Executable {
		mode = 0o755
	}
	if err := atomicWrite(dst, []byte(out), mode); err != nil {
		return AppliedItem{}, err
	}
	return written("template", item.Src, item.Target), nil
}

// applyFile copies assets/<src> preserving mode bits.
func (a *Applier) applyFile(packDir string, item pack.FileItem) (AppliedItem, error) {
	src, err := packPath(packDir, "assets", item.Src)
	if err != nil {
		return AppliedItem{}, err
	}
	dst, err := a.targetPath(item.Target)
	if err != nil {
		return AppliedItem{}, err
	}

	if item.Mode == pack.ModeSkip {
		if _, err := os.Stat(dst); err == nil {
			return skipped("file", item.Src, item.Target), nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return AppliedItem{}, errors.Wrap(err, "creating target directory")
	}
	if err := cp.Copy(src, dst, cp.Options{PermissionControl: cp.PerservePermission}); err != nil {
		return AppliedItem{}, errors.Wrapf(err, "copying %s", item.Src)
	}
	return written("file", item.Src, item.Target), nil
}

// applyJob installs jobs/<src> as <jobsDir>/<id> keeping the source
// extension, so the daemon discovers it on the next scan.
func (a *Applier) applyJob(packDir string, item pack.JobItem) (AppliedItem, error) {
	src, err := packPath(packDir, "jobs", item.Src)
	if err != nil {
		return AppliedItem{}, err
	}
	target := filepath.ToSlash(filepath.Join(a.jobsDir(), item.ID+filepath.Ext(item.Src)))
	dst, err := a.targetPath(target)
	if err != nil {
		return AppliedItem{}, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return AppliedItem{}, errors.Wrapf(err, "reading job %s", item.Src)
	}
	if err := atomicWrite(dst, data, 0o644); err != nil {
		return AppliedItem{}, err
	}
	return written("job", item.Src, target), nil
}

// applyEvent installs an event binding under events/<kind>/.
func (a *Applier) applyEvent(packDir string, item pack.EventItem) (AppliedItem, error) {
	src, err := packPath(packDir, "events", item.Src)
	if err != nil {
		return AppliedItem{}, err
	}
	target := filepath.ToSlash(filepath.Join(a.eventsDir(), item.Kind, filepath.Base(item.Src)))
	dst, err := a.targetPath(target)
	if err != nil {
		return AppliedItem{}, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return AppliedItem{}, errors.Wrapf(err, "reading event binding %s", item.Src)
	}
	if err := atomicWrite(dst, data, 0o644); err != nil {
		return AppliedItem{}, err
	}
	return written("event", item.Src, target), nil
}

// applyMerge folds the item's entries into an npm-style manifest.
func (a *Applier) applyMerge(item pack.MergeItem) (AppliedItem, error) {
	dst, err := a.targetPath(item.Target)
	if err != nil {
		return AppliedItem{}, err
	}
	if err := mergeManifest(dst, item); err != nil {
		return AppliedItem{}, err
	}
	return AppliedItem{Action: "merge", Source: item.Target, Target: item.Target, Type: "merge"}, nil
}

func written(action, src, target string) AppliedItem {
	return AppliedItem{Action: action, Source: src, Target: target, Type: "write"}
}

func skipped(action, src, target string) AppliedItem {
	return AppliedItem{Action: action, Source: src, Target: target, Type: "skip"}
}
