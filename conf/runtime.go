package conf

import (
	"os"

	"go.uber.org/zap"

	"github.com/gitvan/gitvan/logger"
)

// Runtime bundles configuration with the process-wide collaborators that
// GitVan components need. It replaces global mutable state: constructors
// receive a *Runtime, and tests pass a fresh one for full isolation.
type Runtime struct {
	Config  *Config
	Log     *zap.SugaredLogger
	WorkDir string

	// Getenv is the environment lookup used for forge tokens and overrides.
	// Defaults to os.Getenv; tests substitute a map lookup.
	Getenv func(string) string
}

// NewRuntime constructs a Runtime for the given working directory, reading
// the environment once.
func NewRuntime(workDir string) (*Runtime, error) {
	cfg, err := Load(workDir)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Config:  cfg,
		Log:     logger.Logger,
		WorkDir: workDir,
		Getenv:  os.Getenv,
	}, nil
}

// TestRuntime returns a Runtime with defaults only, a no-op friendly logger,
// and an isolated environment. Cache and work directories point at dir.
func TestRuntime(dir string, env map[string]string) *Runtime {
	cfg := defaultsOnly()
	cfg.Cache.Dir = dir
	return &Runtime{
		Config:  cfg,
		Log:     logger.Logger,
		WorkDir: dir,
		Getenv: func(key string) string {
			return env[key]
		},
	}
}

// ForgeToken returns the configured forge token, or "" when unset.
func (r *Runtime) ForgeToken() string {
	if r.Getenv == nil {
		return ""
	}
	return r.Getenv(r.Config.Forge.TokenEnv)
}
