package tmpl

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"
	"unicode"
)

// filterFuncs are GitVan's own template filters. They shadow any sprig
// function of the same name so behavior stays stable across sprig
// upgrades.
func filterFuncs() template.FuncMap {
	return template.FuncMap{
		"camelCase":  camelCase,
		"pascalCase": pascalCase,
		"kebabCase":  func(s string) string { return joinWords(s, "-") },
		"snakeCase":  func(s string) string { return joinWords(s, "_") },
		"upperCase":  strings.ToUpper,
		"lowerCase":  strings.ToLower,
		"capitalize": capitalize,
		"jsEscape":   template.JSEscapeString,
		"split":      func(sep, s string) []string { return strings.Split(s, sep) },
		"last":       lastOf,
		"date":       formatDate,
		"sum":        sumBy,
		"tojson":     toJSON,
	}
}

// words splits an identifier on spaces, dashes, underscores, and
// lower-to-upper case boundaries.
func words(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	prevLower := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '_' || r == '.' || r == '/':
			flush()
			prevLower = false
		case unicode.IsUpper(r) && prevLower:
			flush()
			cur.WriteRune(r)
			prevLower = false
		default:
			cur.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	flush()
	return out
}

func joinWords(s, sep string) string {
	ws := words(s)
	for i, w := range ws {
		ws[i] = strings.ToLower(w)
	}
	return strings.Join(ws, sep)
}

func camelCase(s string) string {
	ws := words(s)
	for i, w := range ws {
		if i == 0 {
			ws[i] = strings.ToLower(w)
		} else {
			ws[i] = capitalize(strings.ToLower(w))
		}
	}
	return strings.Join(ws, "")
}

func pascalCase(s string) string {
	ws := words(s)
	for i, w := range ws {
		ws[i] = capitalize(strings.ToLower(w))
	}
	return strings.Join(ws, "")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// lastOf returns the last element of a slice or the last rune of a string.
func lastOf(v any) any {
	switch t := v.(type) {
	case string:
		if t == "" {
			return ""
		}
		r := []rune(t)
		return string(r[len(r)-1])
	case []string:
		if len(t) == 0 {
			return ""
		}
		return t[len(t)-1]
	case []any:
		if len(t) == 0 {
			return nil
		}
		return t[len(t)-1]
	}
	return v
}

// formatDate renders a time with a Go layout. With one argument it
// formats the current time; a second argument supplies the time (either
// time.Time or RFC 3339).
func formatDate(layout string, rest ...any) (string, error) {
	at := time.Now().UTC()
	if len(rest) > 0 {
		switch t := rest[0].(type) {
		case time.Time:
			at = t
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return "", fmt.Errorf("date: %w", err)
			}
			at = parsed
		default:
			return "", fmt.Errorf("date: unsupported time %T", rest[0])
		}
	}
	return at.Format(layout), nil
}

// sumBy totals a numeric attribute over a list of maps:
//
//	{{ sum "price" .items }}
func sumBy(attribute string, list any) (float64, error) {
	items, ok := list.([]any)
	if !ok {
		return 0, fmt.Errorf("sum: expected a list, got %T", list)
	}
	var total float64
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("sum: list element is %T, not an object", item)
		}
		v, ok := m[attribute]
		if !ok {
			continue
		}
		n, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("sum: attribute %q: %w", attribute, err)
		}
		total += n
	}
	return total, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func toJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
