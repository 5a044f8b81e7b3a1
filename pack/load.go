package pack

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/gitvan/gitvan/errors"
)

var (
	idPattern      = regexp.MustCompile(`^[a-z0-9._/-]+$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	hexPattern     = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// ManifestInvalid is returned when pack.json fails schema validation.
type ManifestInvalid struct {
	Path   string
	Reason string
}

func (e *ManifestInvalid) Error() string {
	if e.Path == "" {
		return "invalid pack manifest: " + e.Reason
	}
	return fmt.Sprintf("invalid pack manifest %s: %s", e.Path, e.Reason)
}

// Load reads and validates pack.json from a pack directory.
func Load(packDir string) (*Manifest, error) {
	path := filepath.Join(packDir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ManifestInvalid{Path: path, Reason: "pack.json not found"}
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		var mi *ManifestInvalid
		if errors.As(err, &mi) {
			mi.Path = path
		}
		return nil, err
	}
	return m, nil
}

// Parse validates and normalizes a raw pack.json document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestInvalid{Reason: "not valid JSON: " + err.Error()}
	}

	// Preserve unknown top-level fields.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		for k, v := range raw {
			if !knownField(k) {
				if m.Extra == nil {
					m.Extra = map[string]json.RawMessage{}
				}
				m.Extra[k] = v
			}
		}
	}

	m.Normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Normalize fills defaults so downstream code never sees nil collections
// or a zero order.
func (m *Manifest) Normalize() {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.Capabilities == nil {
		m.Capabilities = []string{}
	}
	if m.Compose.Order == 0 {
		m.Compose.Order = DefaultOrder
	}
	for i := range m.Provides.Templates {
		if m.Provides.Templates[i].Mode == "" {
			m.Provides.Templates[i].Mode = ModeOverwrite
		}
	}
	for i := range m.Provides.Files {
		if m.Provides.Files[i].Mode == "" {
			m.Provides.Files[i].Mode = ModeOverwrite
		}
	}
}

// Validate enforces the manifest schema.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return &ManifestInvalid{Reason: "id is required"}
	}
	if !idPattern.MatchString(m.ID) {
		return &ManifestInvalid{Reason: fmt.Sprintf("id %q must match %s", m.ID, idPattern)}
	}
	if m.Version == "" {
		return &ManifestInvalid{Reason: "version is required"}
	}
	if !versionPattern.MatchString(m.Version) {
		return &ManifestInvalid{Reason: fmt.Sprintf("version %q must be X.Y.Z", m.Version)}
	}
	if m.Source.Hash != "" && !hexPattern.MatchString(m.Source.Hash) {
		return &ManifestInvalid{Reason: "source.hash must be 64 lowercase hex characters"}
	}
	for _, dep := range m.Compose.DependsOn {
		if !idPattern.MatchString(dep) {
			return &ManifestInvalid{Reason: fmt.Sprintf("dependsOn entry %q is not a valid pack id", dep)}
		}
	}
	for _, inc := range m.Compose.IncompatibleWith {
		if inc.Pack == "" || inc.VersionRange == "" {
			return &ManifestInvalid{Reason: "incompatibleWith entries need pack and versionRange"}
		}
	}
	seen := map[string]bool{}
	for _, in := range m.Inputs {
		if in.Key == "" {
			return &ManifestInvalid{Reason: "input key is required"}
		}
		if seen[in.Key] {
			return &ManifestInvalid{Reason: fmt.Sprintf("duplicate input key %q", in.Key)}
		}
		seen[in.Key] = true
		switch in.Type {
		case "string", "boolean", "select", "multiselect":
		default:
			return &ManifestInvalid{Reason: fmt.Sprintf("input %q has unknown type %q", in.Key, in.Type)}
		}
		if (in.Type == "select" || in.Type == "multiselect") && len(in.Options) == 0 {
			return &ManifestInvalid{Reason: fmt.Sprintf("input %q needs options", in.Key)}
		}
		if in.Pattern != "" {
			if _, err := regexp.Compile(in.Pattern); err != nil {
				return &ManifestInvalid{Reason: fmt.Sprintf("input %q pattern: %v", in.Key, err)}
			}
		}
	}
	return nil
}

// Serialize renders the manifest back to JSON with stable key ordering,
// including preserved unknown fields. parse(serialize(m)) == m.
func (m *Manifest) Serialize() ([]byte, error) {
	base, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling manifest")
	}
	if len(m.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, errors.Wrap(err, "remarshaling manifest")
	}
	for k, v := range m.Extra {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]byte, 0, len(base))
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, _ := json.Marshal(k)
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, merged[k]...)
	}
	ordered = append(ordered, '}')
	return ordered, nil
}

func knownField(name string) bool {
	switch name {
	case "id", "version", "name", "description", "tags", "capabilities",
		"author", "license", "requires", "compose", "provides", "inputs",
		"source", "forge":
		return true
	}
	return false
}
