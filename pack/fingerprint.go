package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/gitvan/gitvan/errors"
)

// Fingerprint computes the 64-hex SHA-256 content fingerprint of a pack:
// a hash of the canonicalized manifest identity plus sorted
// (relpath, sha256(content)) pairs for every file the pack provides.
// Equal fingerprints mean "already applied".
//
// The computation is deterministic across runs: slices are sorted, map
// keys are ordered by encoding/json, and no timestamps participate.
func (m *Manifest) Fingerprint(packDir string) (string, error) {
	canonical, err := m.canonicalIdentity()
	if err != nil {
		return "", err
	}

	entries, err := m.contentEntries(packDir)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write(canonical)
	for _, e := range entries {
		h.Write([]byte(e.Path))
		h.Write([]byte{0})
		h.Write([]byte(e.Hash))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type contentEntry struct {
	Path string
	Hash string
}

// canonicalIdentity renders (id, version, sorted compose, sorted provides)
// as deterministic JSON.
func (m *Manifest) canonicalIdentity() ([]byte, error) {
	compose := m.Compose
	compose.DependsOn = sortedCopy(compose.DependsOn)
	compose.ConflictsWith = sortedCopy(compose.ConflictsWith)
	incompat := make([]Incompatibility, len(compose.IncompatibleWith))
	copy(incompat, compose.IncompatibleWith)
	sort.Slice(incompat, func(i, j int) bool { return incompat[i].Pack < incompat[j].Pack })
	compose.IncompatibleWith = incompat

	provides := m.Provides
	templates := make([]TemplateItem, len(provides.Templates))
	copy(templates, provides.Templates)
	sort.Slice(templates, func(i, j int) bool { return templates[i].Src < templates[j].Src })
	provides.Templates = templates

	files := make([]FileItem, len(provides.Files))
	copy(files, provides.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Src < files[j].Src })
	provides.Files = files

	jobs := make([]JobItem, len(provides.Jobs))
	copy(jobs, provides.Jobs)
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Src < jobs[j].Src })
	provides.Jobs = jobs

	provides.Scaffolds = sortedCopy(provides.Scaffolds)
	provides.Commands = sortedCopy(provides.Commands)

	identity := struct {
		ID       string   `json:"id"`
		Version  string   `json:"version"`
		Compose  Compose  `json:"compose"`
		Provides Provides `json:"provides"`
	}{m.ID, m.Version, compose, provides}

	b, err := json.Marshal(identity)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalizing manifest")
	}
	return b, nil
}

// contentEntries hashes every file the pack provides, sorted by relpath.
func (m *Manifest) contentEntries(packDir string) ([]contentEntry, error) {
	var rels []string
	for _, t := range m.Provides.Templates {
		rels = append(rels, filepath.Join("templates", t.Src))
	}
	for _, f := range m.Provides.Files {
		rels = append(rels, filepath.Join("assets", f.Src))
	}
	for _, j := range m.Provides.Jobs {
		rels = append(rels, filepath.Join("jobs", j.Src))
	}
	for _, e := range m.Provides.Events {
		rels = append(rels, filepath.Join("events", e.Src))
	}
	sort.Strings(rels)

	entries := make([]contentEntry, 0, len(rels))
	for _, rel := range rels {
		data, err := os.ReadFile(filepath.Join(packDir, rel))
		if err != nil {
			return nil, errors.Wrapf(err, "hashing provided file %s", rel)
		}
		sum := sha256.Sum256(data)
		entries = append(entries, contentEntry{
			Path: filepath.ToSlash(rel),
			Hash: hex.EncodeToString(sum[:]),
		})
	}
	return entries, nil
}

func sortedCopy(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
