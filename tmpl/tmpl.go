// Package tmpl is the sandboxed template renderer. Templates are Go
// text/template with the sprig function set (minus anything touching the
// environment, filesystem, or network) plus GitVan's own filters.
// Rendering never touches the filesystem; writing output is the caller's
// job.
package tmpl

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
)

// RenderError wraps any failure to parse or execute a template.
type RenderError struct {
	Name   string
	Reason string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return "rendering " + e.Name + ": " + e.Reason + ": " + e.Err.Error()
	}
	return "rendering " + e.Name + ": " + e.Reason
}

func (e *RenderError) Unwrap() error { return e.Err }

// errOutputCap aborts execution when the output budget is exhausted.
var errOutputCap = errors.New("output size cap exceeded")

// Renderer renders templates under configured limits. Safe for concurrent
// use.
type Renderer struct {
	maxTemplate int64
	maxOutput   int64
	timeout     time.Duration
	funcs       template.FuncMap
	log         *zap.SugaredLogger
}

// New builds a renderer from the runtime's template limits.
func New(rt *conf.Runtime) *Renderer {
	cfg := rt.Config.Template
	return &Renderer{
		maxTemplate: cfg.MaxTemplateBytes,
		maxOutput:   cfg.MaxOutputBytes,
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		funcs:       buildFuncMap(),
		log:         rt.Log.Named("tmpl"),
	}
}

// buildFuncMap is sprig with ambient-authority functions removed, then
// GitVan's filters layered on top.
func buildFuncMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	for _, name := range []string{"env", "expandenv", "getHostByName", "osBase", "osClean", "osDir", "osExt", "osIsAbs"} {
		delete(funcs, name)
	}
	for name, fn := range filterFuncs() {
		funcs[name] = fn
	}
	return funcs
}

// Render executes the template against data. The template size, output
// size, and wall-clock limits are all enforced; violations return a
// *RenderError before (or instead of) producing output.
func (r *Renderer) Render(ctx context.Context, name, text string, data map[string]any) (string, error) {
	if int64(len(text)) > r.maxTemplate {
		return "", &RenderError{Name: name, Reason: "template exceeds size limit"}
	}

	t, err := template.New(name).Funcs(r.funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", &RenderError{Name: name, Reason: "parse failed", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	w := &cappedWriter{max: r.maxOutput, ctx: ctx}
	done := make(chan error, 1)
	go func() {
		done <- t.Execute(w, Sanitize(data))
	}()

	select {
	case err := <-done:
		if err != nil {
			if errors.Is(err, errOutputCap) || strings.Contains(err.Error(), errOutputCap.Error()) {
				return "", &RenderError{Name: name, Reason: "output exceeds size limit"}
			}
			if ctx.Err() != nil {
				return "", &RenderError{Name: name, Reason: "render timed out", Err: ctx.Err()}
			}
			return "", &RenderError{Name: name, Reason: "execution failed", Err: err}
		}
		return w.buf.String(), nil
	case <-ctx.Done():
		// The goroutine is abandoned; the capped writer refuses further
		// output once the context is done, which unblocks it.
		r.log.Warnw("template render abandoned", "name", name, "error", ctx.Err())
		return "", &RenderError{Name: name, Reason: "render timed out", Err: ctx.Err()}
	}
}

// Sanitize returns a copy of data without runtime-reserved keys. Keys with
// a double-underscore prefix belong to the runtime; callers inject their
// own after sanitizing.
func Sanitize(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if strings.HasPrefix(k, "__") {
			continue
		}
		out[k] = v
	}
	return out
}

// cappedWriter fails the execution when too much output accumulates or the
// render deadline passes.
type cappedWriter struct {
	buf strings.Builder
	max int64
	ctx context.Context
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}
	if int64(w.buf.Len()+len(p)) > w.max {
		return 0, errOutputCap
	}
	return w.buf.Write(p)
}
