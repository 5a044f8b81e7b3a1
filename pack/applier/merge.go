package applier

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"

	"github.com/gitvan/gitvan/errors"
	"github.com/gitvan/gitvan/pack"
)

// mergeSections are the npm manifest sections the merge touches, in
// output order preference.
var mergeSections = []string{"dependencies", "devDependencies", "scripts"}

// mergeManifest folds the item's entries into the JSON document at path.
// The merge is add-only: keys already present keep their value. A missing
// file starts from an empty document. Output has stable key ordering and
// a trailing newline.
func mergeManifest(path string, item pack.MergeItem) error {
	doc := map[string]json.RawMessage{}
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return errors.Wrapf(err, "parsing %s", path)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "reading %s", path)
	}

	sections := map[string]map[string]string{
		"dependencies":    item.Dependencies,
		"devDependencies": item.DevDependencies,
		"scripts":         item.Scripts,
	}
	for _, name := range mergeSections {
		add := sections[name]
		if len(add) == 0 {
			continue
		}
		merged, err := mergeSection(doc[name], add)
		if err != nil {
			return errors.Wrapf(err, "merging %s of %s", name, path)
		}
		doc[name] = merged
	}

	out, err := marshalStable(doc)
	if err != nil {
		return err
	}
	return atomicWrite(path, out, 0o644)
}

// mergeSection adds absent keys into an object section.
func mergeSection(existing json.RawMessage, add map[string]string) (json.RawMessage, error) {
	section := map[string]string{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &section); err != nil {
			return nil, err
		}
	}
	for k, v := range add {
		if _, ok := section[k]; !ok {
			section[k] = v
		}
	}
	return marshalSorted(section)
}

// marshalSorted renders a string map with sorted keys.
func marshalSorted(m map[string]string) (json.RawMessage, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalStable renders the whole document with sorted top-level keys,
// two-space indentation, and a trailing newline.
func marshalStable(doc map[string]json.RawMessage) ([]byte, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			compact.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		compact.Write(kb)
		compact.WriteByte(':')
		compact.Write(doc[k])
	}
	compact.WriteByte('}')

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, compact.Bytes(), "", "  "); err != nil {
		return nil, errors.Wrap(err, "formatting merged manifest")
	}
	pretty.WriteByte('\n')
	return pretty.Bytes(), nil
}
