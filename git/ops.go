package git

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gitvan/gitvan/errors"
)

// Init creates a new repository at ec.Dir.
func (r *Runner) Init(ctx context.Context, ec Context) error {
	_, err := r.run(ctx, ec, "init", "-q")
	return err
}

// ConfigSet sets a repository-local config value.
func (r *Runner) ConfigSet(ctx context.Context, ec Context, key, value string) error {
	_, err := r.run(ctx, ec, "config", key, value)
	return err
}

// Log returns commit log output in the given pretty format. limit <= 0
// means no limit.
func (r *Runner) Log(ctx context.Context, ec Context, format string, limit int) (string, error) {
	args := []string{"log", "--pretty=format:" + format}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	return r.run(ctx, ec, args...)
}

// LastMessage returns subject and body of HEAD's commit message.
func (r *Runner) LastMessage(ctx context.Context, ec Context) (string, error) {
	return r.Log(ctx, ec, "%s%n%b", 1)
}

// Status returns porcelain v1 status output.
func (r *Runner) Status(ctx context.Context, ec Context) (string, error) {
	return r.run(ctx, ec, "status", "--porcelain")
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Runner) CurrentBranch(ctx context.Context, ec Context) (string, error) {
	return r.run(ctx, ec, "rev-parse", "--abbrev-ref", "HEAD")
}

// Add stages the given paths.
func (r *Runner) Add(ctx context.Context, ec Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := r.run(ctx, ec, args...)
	return err
}

// Commit records staged changes with the given message.
func (r *Runner) Commit(ctx context.Context, ec Context, message string) error {
	_, err := r.run(ctx, ec, "commit", "-q", "-m", message)
	return err
}

// Checkout switches to the given ref.
func (r *Runner) Checkout(ctx context.Context, ec Context, ref string) error {
	_, err := r.run(ctx, ec, "checkout", "-q", ref)
	return err
}

// Merge merges the given ref into the current branch.
func (r *Runner) Merge(ctx context.Context, ec Context, ref string) error {
	_, err := r.run(ctx, ec, "merge", "-q", ref)
	return err
}

// RevParse resolves a revision to its object id.
func (r *Runner) RevParse(ctx context.Context, ec Context, rev string) (string, error) {
	return r.run(ctx, ec, "rev-parse", rev)
}

// ShowRef returns the object id for a fully qualified ref name, or "" if
// the ref does not exist.
func (r *Runner) ShowRef(ctx context.Context, ec Context, name string) (string, error) {
	out, err := r.run(ctx, ec, "show-ref", "--hash", name)
	if err != nil {
		var gerr *Error
		// show-ref exits 1 for a missing ref; that's not a failure here.
		if errors.As(err, &gerr) && gerr.ExitCode == 1 {
			return "", nil
		}
		return "", err
	}
	// Multiple matches possible; first line wins.
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	return out, nil
}

// DiffNameOnly returns the paths changed between two revisions.
func (r *Runner) DiffNameOnly(ctx context.Context, ec Context, from, to string) ([]string, error) {
	out, err := r.run(ctx, ec, "diff", "--name-only", from, to)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ChangedPathsInCommit returns the paths touched by a single commit.
func (r *Runner) ChangedPathsInCommit(ctx context.Context, ec Context, commit string) ([]string, error) {
	out, err := r.run(ctx, ec, "show", "--name-only", "--pretty=format:", commit)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// Tags returns every tag name with the object id it points at.
func (r *Runner) Tags(ctx context.Context, ec Context) (map[string]string, error) {
	out, err := r.run(ctx, ec, "for-each-ref", "--format=%(refname:short) %(objectname)", "refs/tags")
	if err != nil {
		return nil, err
	}
	tags := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		name, hash, ok := strings.Cut(strings.TrimSpace(line), " ")
		if ok && name != "" {
			tags[name] = hash
		}
	}
	return tags, nil
}

// Tag creates a lightweight tag at HEAD.
func (r *Runner) Tag(ctx context.Context, ec Context, name string) error {
	_, err := r.run(ctx, ec, "tag", name)
	return err
}

// IsMergeCommit reports whether the commit has more than one parent.
func (r *Runner) IsMergeCommit(ctx context.Context, ec Context, commit string) (bool, error) {
	out, err := r.run(ctx, ec, "rev-list", "--parents", "-n", "1", commit)
	if err != nil {
		return false, err
	}
	return len(strings.Fields(out)) > 2, nil
}

// Clone performs a shallow clone of url into dest. ref selects a branch or
// tag when non-empty; depth <= 0 defaults to 1.
func (r *Runner) Clone(ctx context.Context, ec Context, url, ref string, depth int, dest string) error {
	if depth <= 0 {
		depth = 1
	}
	args := []string{"clone", "-q", "--depth", strconv.Itoa(depth)}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, dest)
	_, err := r.run(ctx, ec, args...)
	return err
}

// NowISO returns the current time in UTC ISO-8601, the timestamp format
// used in receipts.
func (r *Runner) NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
