package pack

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gitvan/gitvan/errors"
)

// InputValidationFailed is returned when a supplied input violates its
// prompt schema.
type InputValidationFailed struct {
	Key    string
	Reason string
}

func (e *InputValidationFailed) Error() string {
	return fmt.Sprintf("input %q: %s", e.Key, e.Reason)
}

// PathTraversal is returned when a string input tries to escape the target
// directory.
type PathTraversal struct {
	Key   string
	Value string
}

func (e *PathTraversal) Error() string {
	return fmt.Sprintf("input %q: path traversal rejected: %q", e.Key, e.Value)
}

// TemplateInjection is returned when a string input contains template
// syntax in a field that is not itself a template.
type TemplateInjection struct {
	Key   string
	Value string
}

func (e *TemplateInjection) Error() string {
	return fmt.Sprintf("input %q: template injection rejected: %q", e.Key, e.Value)
}

// ResolveInputs validates supplied values against the pack's input schemas
// and fills defaults. Unknown supplied keys are rejected; string values are
// screened for path traversal and template injection.
func ResolveInputs(defs []Input, supplied map[string]any) (map[string]any, error) {
	known := map[string]Input{}
	for _, def := range defs {
		known[def.Key] = def
	}
	for key := range supplied {
		if _, ok := known[key]; !ok {
			return nil, &InputValidationFailed{Key: key, Reason: "not declared by the pack"}
		}
	}

	resolved := make(map[string]any, len(defs))
	for _, def := range defs {
		value, present := supplied[def.Key]
		if !present {
			if def.Default != nil {
				resolved[def.Key] = def.Default
				continue
			}
			if def.Required {
				return nil, &InputValidationFailed{Key: def.Key, Reason: "required input missing"}
			}
			continue
		}
		checked, err := validateInput(def, value)
		if err != nil {
			return nil, err
		}
		resolved[def.Key] = checked
	}
	return resolved, nil
}

func validateInput(def Input, value any) (any, error) {
	switch def.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, &InputValidationFailed{Key: def.Key, Reason: fmt.Sprintf("expected string, got %T", value)}
		}
		if err := screenString(def.Key, s); err != nil {
			return nil, err
		}
		if def.Pattern != "" {
			re, err := regexp.Compile(def.Pattern)
			if err != nil {
				return nil, errors.Wrapf(err, "input %q pattern", def.Key)
			}
			if !re.MatchString(s) {
				return nil, &InputValidationFailed{Key: def.Key, Reason: fmt.Sprintf("value %q does not match %s", s, def.Pattern)}
			}
		}
		return s, nil

	case "boolean":
		b, ok := value.(bool)
		if !ok {
			return nil, &InputValidationFailed{Key: def.Key, Reason: fmt.Sprintf("expected boolean, got %T", value)}
		}
		return b, nil

	case "select":
		s, ok := value.(string)
		if !ok {
			return nil, &InputValidationFailed{Key: def.Key, Reason: fmt.Sprintf("expected string option, got %T", value)}
		}
		if !contains(def.Options, s) {
			return nil, &InputValidationFailed{Key: def.Key, Reason: fmt.Sprintf("%q is not one of %v", s, def.Options)}
		}
		return s, nil

	case "multiselect":
		values, err := stringSlice(value)
		if err != nil {
			return nil, &InputValidationFailed{Key: def.Key, Reason: err.Error()}
		}
		for _, s := range values {
			if !contains(def.Options, s) {
				return nil, &InputValidationFailed{Key: def.Key, Reason: fmt.Sprintf("%q is not one of %v", s, def.Options)}
			}
		}
		return values, nil

	default:
		return nil, &InputValidationFailed{Key: def.Key, Reason: fmt.Sprintf("unknown input type %q", def.Type)}
	}
}

// screenString rejects traversal sequences, absolute paths where a relative
// value is expected, and template syntax in plain values.
func screenString(key, s string) error {
	if strings.Contains(s, "..") {
		return &PathTraversal{Key: key, Value: s}
	}
	if filepath.IsAbs(s) || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "\\") {
		return &PathTraversal{Key: key, Value: s}
	}
	if strings.Contains(s, "${") || strings.Contains(s, "{{") {
		return &TemplateInjection{Key: key, Value: s}
	}
	return nil
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

func stringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", value)
	}
}
