// Package commands holds the gitvan CLI commands.
package commands

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/git"
	"github.com/gitvan/gitvan/logger"
	"github.com/gitvan/gitvan/pack/cache"
	"github.com/gitvan/gitvan/pack/composer"
	"github.com/gitvan/gitvan/pack/source"
)

// Process exit codes. 0 is implicit success.
const (
	ExitError        = 1
	ExitPartial      = 2
	ExitConflict     = 3
	ExitInvalidInput = 4
)

// ExitCodeError carries a non-default exit code out of RunE; main maps it
// to os.Exit after cobra unwinds.
type ExitCodeError struct {
	Code    int
	Message string
}

func (e *ExitCodeError) Error() string { return e.Message }

func exitWith(code int, message string) error {
	return &ExitCodeError{Code: code, Message: message}
}

// newRuntime builds the Runtime every command starts from: working
// directory from --dir (default cwd), config from --config or the
// repository-local file, and the already initialized global logger.
func newRuntime(cmd *cobra.Command) (*conf.Runtime, error) {
	dir, _ := cmd.Root().PersistentFlags().GetString("dir")
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "resolving working directory")
		}
		dir = wd
	}

	var cfg *conf.Config
	var err error
	if path, _ := cmd.Root().PersistentFlags().GetString("config"); path != "" {
		cfg, err = conf.LoadFromFile(path)
	} else {
		cfg, err = conf.Load(dir)
	}
	if err != nil {
		return nil, err
	}

	return &conf.Runtime{
		Config:  cfg,
		Log:     logger.Logger,
		WorkDir: dir,
		Getenv:  os.Getenv,
	}, nil
}

// newComposer wires the full apply stack: cache, fetcher, composer.
func newComposer(rt *conf.Runtime) (*composer.Composer, *git.Runner, error) {
	c, err := cache.New(rt.Config, rt.Log)
	if err != nil {
		return nil, nil, err
	}
	fetcher := source.NewFetcher(rt, c, nil)
	runner := git.NewRunner(rt.Log)
	return composer.New(rt, fetcher, runner), runner, nil
}

// parseInputs turns repeated key=value flags into an input map.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Newf("invalid input %q, expected key=value", pair)
		}
		inputs[key] = value
	}
	return inputs, nil
}
