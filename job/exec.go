package job

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
)

// maxExecOutput caps captured job output recorded into receipts.
const maxExecOutput = 64 << 10

// ExecHandler runs a job's `run` command in the working tree. The signal
// context is passed through GITVAN_* environment variables.
type ExecHandler struct {
	rt  *conf.Runtime
	log *zap.SugaredLogger
}

// NewExecHandler creates the built-in exec handler.
func NewExecHandler(rt *conf.Runtime) *ExecHandler {
	return &ExecHandler{rt: rt, log: rt.Log.Named("exec")}
}

func (h *ExecHandler) Name() string { return DefaultHandler }

// Run splits the command shell-style and executes it with the invocation
// directory as working directory. Output is captured (capped) and
// returned for the receipt.
func (h *ExecHandler) Run(ctx context.Context, inv Invocation) (string, error) {
	words, err := shellquote.Split(inv.Job.Run)
	if err != nil {
		return "", errors.Wrapf(err, "parsing run command for job %s", inv.Job.ID)
	}
	if len(words) == 0 {
		return "", errors.Newf("job %s has an empty run command", inv.Job.ID)
	}

	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	cmd.Dir = inv.WorkDir
	cmd.Env = append(os.Environ(), signalEnv(inv)...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	h.log.Debugw("running job command", "job", inv.Job.ID, "argv0", words[0])
	err = cmd.Run()

	captured := out.String()
	if len(captured) > maxExecOutput {
		captured = captured[:maxExecOutput] + "\n[truncated]"
	}
	if err != nil {
		if ctx.Err() != nil {
			return captured, ctx.Err()
		}
		return captured, errors.Wrapf(err, "job %s command failed", inv.Job.ID)
	}
	return captured, nil
}

// signalEnv maps the triggering signal into the job's environment.
func signalEnv(inv Invocation) []string {
	sig := inv.Signal
	env := []string{
		fmt.Sprintf("GITVAN_JOB=%s", inv.Job.ID),
		fmt.Sprintf("GITVAN_SIGNAL=%s", sig.Kind),
		fmt.Sprintf("GITVAN_COMMIT=%s", sig.Commit),
		fmt.Sprintf("GITVAN_BRANCH=%s", sig.Branch),
	}
	if sig.Tag != "" {
		env = append(env, fmt.Sprintf("GITVAN_TAG=%s", sig.Tag))
	}
	if len(sig.ChangedPaths) > 0 {
		env = append(env, fmt.Sprintf("GITVAN_CHANGED_PATHS=%s", strings.Join(sig.ChangedPaths, "\n")))
	}
	return env
}
