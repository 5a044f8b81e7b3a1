// Package pack defines the pack manifest, its validation, and the content
// fingerprint that drives idempotent application.
package pack

import "encoding/json"

// ManifestFileName is the manifest file at a pack root.
const ManifestFileName = "pack.json"

// DefaultOrder is the compose order assigned when a manifest omits one.
// Packs without explicit ordering apply after every ordered pack.
const DefaultOrder = 999

// Manifest is the parsed pack.json. Unknown fields are preserved on
// round-trip but otherwise ignored.
type Manifest struct {
	ID           string   `json:"id"`
	Version      string   `json:"version"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags"`
	Capabilities []string `json:"capabilities"`
	Author       string   `json:"author,omitempty"`
	License      string   `json:"license,omitempty"`

	Requires Requires `json:"requires,omitempty"`
	Compose  Compose  `json:"compose,omitempty"`
	Provides Provides `json:"provides,omitempty"`
	Inputs   []Input  `json:"inputs,omitempty"`

	Source Source `json:"source,omitempty"`

	// Forge holds provider metadata merged in after a forge fetch.
	// Reserved: user manifests must not set it.
	Forge map[string]any `json:"forge,omitempty"`

	// Unknown fields, preserved for round-trip fidelity.
	Extra map[string]json.RawMessage `json:"-"`
}

// Requires declares runtime constraints checked before application.
type Requires struct {
	GitVan string   `json:"gitvan,omitempty"` // semver range on the running GitVan
	Tools  []string `json:"tools,omitempty"`  // executables that must be on PATH
}

// Compose declares how a pack participates in dependency resolution.
type Compose struct {
	Order            int               `json:"order,omitempty"`
	DependsOn        []string          `json:"dependsOn,omitempty"`
	ConflictsWith    []string          `json:"conflictsWith,omitempty"`
	IncompatibleWith []Incompatibility `json:"incompatibleWith,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"` // pack id -> semver range
	AllowOverlap     bool              `json:"allowOverlap,omitempty"` // permit capability overlap
}

// Incompatibility pins a version range of another pack as unusable.
type Incompatibility struct {
	Pack         string `json:"pack"`
	VersionRange string `json:"versionRange"`
}

// Provides enumerates the artifacts a pack materializes on apply, in the
// fixed application order: templates, files, jobs, merges.
type Provides struct {
	Templates []TemplateItem `json:"templates,omitempty"`
	Files     []FileItem     `json:"files,omitempty"`
	Jobs      []JobItem      `json:"jobs,omitempty"`
	Events    []EventItem    `json:"events,omitempty"`
	Merges    []MergeItem    `json:"merges,omitempty"`
	Scaffolds []string       `json:"scaffolds,omitempty"`
	Commands  []string       `json:"commands,omitempty"`
}

// WriteMode controls behavior when the target file already exists.
type WriteMode string

const (
	ModeOverwrite WriteMode = "overwrite"
	ModeSkip      WriteMode = "skip"
)

// TemplateItem renders templates/<Src> to <Target> under the target tree.
type TemplateItem struct {
	Src        string    `json:"src"`
	Target     string    `json:"target"`
	Mode       WriteMode `json:"mode,omitempty"`
	Executable bool      `json:"executable,omitempty"`
}

// FileItem copies assets/<Src> to <Target>, preserving mode bits.
type FileItem struct {
	Src    string    `json:"src"`
	Target string    `json:"target"`
	Mode   WriteMode `json:"mode,omitempty"`
}

// JobItem installs jobs/<Src> as <jobsDir>/<ID> with the source extension.
type JobItem struct {
	Src string `json:"src"`
	ID  string `json:"id"`
}

// EventItem installs an event binding file under events/<Kind>/.
type EventItem struct {
	Src  string `json:"src"`
	Kind string `json:"kind"`
}

// MergeItem merges entries into an npm-style manifest (e.g. package.json).
// Merging is add-only: existing entries are never overwritten.
type MergeItem struct {
	Target          string            `json:"target"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Scripts         map[string]string `json:"scripts,omitempty"`
}

// Input is a schema-typed prompt resolved before application.
type Input struct {
	Key      string   `json:"key"`
	Type     string   `json:"type"` // string, boolean, select, multiselect
	Prompt   string   `json:"prompt,omitempty"`
	Default  any      `json:"default,omitempty"`
	Options  []string `json:"options,omitempty"`
	Pattern  string   `json:"pattern,omitempty"` // regex for string inputs
	Required bool     `json:"required,omitempty"`
}

// Source records provenance for integrity checking.
type Source struct {
	URL  string `json:"url,omitempty"`
	Hash string `json:"hash,omitempty"` // optional 64-hex sha256
}
