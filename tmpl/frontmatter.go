package tmpl

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gitvan/gitvan/errors"
)

const frontMatterFence = "---"

// SplitFrontMatter separates an optional YAML front-matter block from the
// template body. A block is present when the first line is exactly "---"
// and a closing fence follows; anything else returns the input unchanged
// with nil metadata.
func SplitFrontMatter(raw string) (map[string]any, string, error) {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	if !strings.HasPrefix(normalized, frontMatterFence+"\n") {
		return nil, raw, nil
	}

	rest := normalized[len(frontMatterFence)+1:]
	end := strings.Index(rest, "\n"+frontMatterFence)
	if end < 0 {
		return nil, raw, nil
	}

	block := rest[:end]
	body := rest[end+len(frontMatterFence)+1:]
	body = strings.TrimPrefix(body, "\n")

	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, "", errors.Wrap(err, "parsing front matter")
	}
	return meta, body, nil
}
