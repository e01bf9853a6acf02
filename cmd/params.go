package cmd

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseParams turns key=value pairs into statement parameters. Values are
// read as YAML scalars or flow sequences, so 42 is an int, true a bool,
// null nil and [1, 2] a list; quote a value to force a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: want key=value", p)
		}
		var v any
		if err := yaml.Unmarshal([]byte(val), &v); err != nil {
			v = val
		}
		if _, isMap := v.(map[string]any); isMap {
			v = val
		}
		params[key] = v
	}
	return params, nil
}
