package job

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gitvan/gitvan/errors"
)

// Binding links an event pattern to a job. It comes from a file
// events/<kind>/<pattern>.<ext> whose body names the job (and may refine
// the predicate).
type Binding struct {
	Kind    string
	Pattern string
	JobID   string
	Path    string

	predicate *Predicate
}

// bindingDoc is the on-disk shape of a binding file.
type bindingDoc struct {
	Job string     `yaml:"job"`
	On  *Predicate `yaml:"on,omitempty"`
}

// bindingKinds maps event directory names to how their pattern is
// interpreted against a signal.
var bindingKinds = map[string]bool{
	"tag":     true, // pattern is a regex over created tag names
	"message": true, // pattern is a regex over commit messages
	"path":    true, // pattern is a doublestar glob over changed paths
	"branch":  true, // pattern is an exact branch name
}

// DiscoverEvents walks <workDir>/<eventsDir> and parses every binding.
// Unknown kind directories and malformed bindings are logged and skipped.
func (r *Registry) DiscoverEvents(workDir string) ([]*Binding, error) {
	root := filepath.Join(workDir, r.rt.Config.Daemon.EventsDir)

	var bindings []*Binding
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

		b, err := parseBinding(root, path)
		if err != nil {
			r.log.Warnw("skipping invalid event binding", "path", path, "error", err)
			return nil
		}
		bindings = append(bindings, b)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "discovering event bindings under %s", root)
	}
	return bindings, nil
}

// parseBinding derives kind and pattern from the file location and reads
// the job reference from its body.
func parseBinding(root, path string) (*Binding, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) != 2 {
		return nil, errors.New("binding must live under a kind directory")
	}
	kind := parts[0]
	if !bindingKinds[kind] {
		return nil, errors.Newf("unknown event kind %q", kind)
	}
	pattern := strings.TrimSuffix(parts[1], filepath.Ext(parts[1]))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc bindingDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing binding")
	}
	if doc.Job == "" {
		return nil, errors.New("binding names no job")
	}

	predicate, err := patternPredicate(kind, pattern)
	if err != nil {
		return nil, err
	}
	if doc.On != nil {
		if err := doc.On.Validate(); err != nil {
			return nil, err
		}
		predicate = &Predicate{All: []*Predicate{predicate, doc.On}}
	}

	return &Binding{
		Kind:      kind,
		Pattern:   pattern,
		JobID:     doc.Job,
		Path:      path,
		predicate: predicate,
	}, nil
}

// patternPredicate builds the leaf predicate for a kind/pattern pair.
func patternPredicate(kind, pattern string) (*Predicate, error) {
	var p *Predicate
	switch kind {
	case "tag":
		p = &Predicate{TagCreate: pattern}
	case "message":
		p = &Predicate{Message: pattern}
	case "path":
		p = &Predicate{PathChanged: pattern}
	case "branch":
		p = &Predicate{Branch: pattern}
	default:
		return nil, errors.Newf("unknown event kind %q", kind)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Matches evaluates the binding against a signal.
func (b *Binding) Matches(sig Signal) bool {
	return b.predicate.Matches(sig)
}
