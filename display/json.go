// Package display holds output helpers shared by the CLI commands:
// JSON marshaling with a consistent shape and pterm-based tables.
package display

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON renders v with the indentation every command uses for
// machine-readable output.
func MarshalJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// OutputJSON marshals and prints v followed by a newline.
func OutputJSON(v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
