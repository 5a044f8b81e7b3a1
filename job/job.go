// Package job discovers jobs and event bindings from the working tree and
// dispatches invocations to registered handlers.
//
// A job is a YAML (or JSON) descriptor under jobs/**; its id is the path
// under jobs/ without the extension. Event bindings live under
// events/<kind>/<pattern>; the pattern is the file path under the kind
// directory without the extension.
package job

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
)

// descriptorExts are the recognised job descriptor extensions. YAML is a
// superset of JSON, so .json descriptors parse with the same decoder.
var descriptorExts = map[string]bool{".yaml": true, ".yml": true, ".json": true}

// DefaultHandler runs when a descriptor names none.
const DefaultHandler = "exec"

// Job is a parsed job descriptor.
type Job struct {
	ID   string `yaml:"-"`
	Path string `yaml:"-"`

	Name           string     `yaml:"name,omitempty"`
	Desc           string     `yaml:"desc,omitempty"`
	Cron           string     `yaml:"cron,omitempty"`
	On             *Predicate `yaml:"on,omitempty"`
	Handler        string     `yaml:"handler,omitempty"`
	Run            string     `yaml:"run,omitempty"`
	TimeoutSeconds int        `yaml:"timeout,omitempty"`

	// CronSpec is the parsed form of Cron, nil when the job has none.
	CronSpec *Spec `yaml:"-"`
}

// Timeout returns the per-job deadline, falling back to def.
func (j *Job) Timeout(def time.Duration) time.Duration {
	if j.TimeoutSeconds > 0 {
		return time.Duration(j.TimeoutSeconds) * time.Second
	}
	return def
}

// Invocation carries one job execution request to a handler.
type Invocation struct {
	Job     *Job
	Signal  Signal
	WorkDir string
}

// Handler executes job invocations. Implementations must honor ctx
// cancellation; the worker pool enforces the deadline.
type Handler interface {
	Name() string
	Run(ctx context.Context, inv Invocation) (string, error)
}

// Registry holds the known handlers and discovers jobs and bindings from
// a working tree. Handler registration happens at startup; discovery runs
// on every daemon tick.
type Registry struct {
	rt  *conf.Runtime
	log *zap.SugaredLogger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a registry with the built-in exec handler
// registered.
func NewRegistry(rt *conf.Runtime) *Registry {
	r := &Registry{
		rt:       rt,
		log:      rt.Log.Named("jobs"),
		handlers: map[string]Handler{},
	}
	r.Register(NewExecHandler(rt))
	return r
}

// Register adds a handler; a later registration with the same name wins.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

// Handler returns the named handler, or an error listing what exists.
func (r *Registry) Handler(name string) (Handler, error) {
	if name == "" {
		name = DefaultHandler
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		known := make([]string, 0, len(r.handlers))
		for n := range r.handlers {
			known = append(known, n)
		}
		sort.Strings(known)
		return nil, errors.Newf("unknown job handler %q (registered: %s)", name, strings.Join(known, ", "))
	}
	return h, nil
}

// DiscoverJobs walks <workDir>/<jobsDir> recursively and parses every
// descriptor. Malformed descriptors are logged and skipped so one bad
// file cannot take down the daemon. Results are sorted by id.
func (r *Registry) DiscoverJobs(workDir string) ([]*Job, error) {
	root := filepath.Join(workDir, r.rt.Config.Daemon.JobsDir)
	tz := r.location()

	var jobs []*Job
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !descriptorExts[filepath.Ext(path)] {
			return nil
		}

		j, err := r.parseJob(root, path, tz)
		if err != nil {
			r.log.Warnw("skipping invalid job descriptor", "path", path, "error", err)
			return nil
		}
		jobs = append(jobs, j)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "discovering jobs under %s", root)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func (r *Registry) parseJob(root, path string, tz *time.Location) (*Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var j Job
	if err := yaml.Unmarshal(raw, &j); err != nil {
		return nil, errors.Wrap(err, "parsing descriptor")
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}
	j.Path = path
	j.ID = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))

	if _, err := r.Handler(j.Handler); err != nil {
		return nil, err
	}
	if (j.Handler == "" || j.Handler == DefaultHandler) && j.Run == "" {
		return nil, errors.New("exec job needs a run command")
	}
	if j.Cron != "" {
		spec, err := ParseCron(j.Cron, tz)
		if err != nil {
			return nil, err
		}
		j.CronSpec = spec
	}
	if err := j.On.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Registry) location() *time.Location {
	loc, err := time.LoadLocation(r.rt.Config.Daemon.Timezone)
	if err != nil {
		r.log.Warnw("invalid daemon timezone, using UTC", "tz", r.rt.Config.Daemon.Timezone)
		return time.UTC
	}
	return loc
}
