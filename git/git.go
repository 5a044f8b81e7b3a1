// Package git is the narrow adapter through which GitVan talks to a Git
// executable. Every call spawns a subprocess with a deterministic
// environment (TZ=UTC, LANG=C) and the working directory taken from an
// execution Context supplied at call time, so parallel tasks may operate on
// different repositories through one Runner.
package git

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/gitvan/gitvan/errors"
)

// MaxStdoutBytes caps captured subprocess output. Overflow fails the call
// rather than truncating silently.
const MaxStdoutBytes = 12 << 20

// Context carries the per-call execution environment. A zero Context runs
// in the process working directory with the inherited environment.
type Context struct {
	Dir string   // working directory for the subprocess
	Env []string // extra KEY=VALUE entries appended to the environment
}

// Runner executes git commands. Safe for concurrent use.
type Runner struct {
	bin string
	log *zap.SugaredLogger
}

// NewRunner returns a Runner using the given logger for diagnostics.
// Diagnostic output never mixes into captured stdout.
func NewRunner(log *zap.SugaredLogger) *Runner {
	return &Runner{bin: "git", log: log.Named("git")}
}

// run spawns git with the given arguments and returns trimmed stdout.
func (r *Runner) run(ctx context.Context, ec Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	if ec.Dir != "" {
		cmd.Dir = ec.Dir
	}
	cmd.Env = append(os.Environ(), "TZ=UTC", "LANG=C")
	cmd.Env = append(cmd.Env, ec.Env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", errors.Wrap(err, "opening stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return "", errors.Wrapf(err, "starting git %s", args[0])
	}

	// Read one byte past the cap so overflow is detectable.
	out, readErr := io.ReadAll(io.LimitReader(stdout, MaxStdoutBytes+1))
	waitErr := cmd.Wait()

	if readErr != nil {
		return "", errors.Wrapf(readErr, "reading git %s output", args[0])
	}
	if len(out) > MaxStdoutBytes {
		return "", &Error{
			Args:   args,
			Stderr: "stdout exceeded 12 MiB cap",
		}
	}
	if waitErr != nil {
		exitCode := -1
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			exitCode = ee.ExitCode()
		}
		gerr := &Error{
			Args:     args,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
		}
		r.log.Debugw("git command failed",
			"args", strings.Join(args, " "),
			"exit_code", exitCode,
			"stderr", gerr.Stderr)
		return "", gerr
	}

	return strings.TrimRight(string(out), "\n"), nil
}
