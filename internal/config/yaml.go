package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toStrictJSON returns the config file content as JSON bytes so a
// single strict decoder (DisallowUnknownFields) covers both formats.
// YAML files are unmarshaled and re-marshaled; everything else passes
// through untouched. The second return is the detected format, for
// error messages.
func toStrictJSON(path string, data []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml to json: %w", err)
	}
	return out, "yaml", nil
}

// stringifyKeys rewrites YAML's map[any]any nodes into map[string]any,
// which json.Marshal requires.
func stringifyKeys(v any) any {
	switch node := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[fmt.Sprint(k)] = stringifyKeys(val)
		}
		return out
	case map[string]any:
		for k, val := range node {
			node[k] = stringifyKeys(val)
		}
		return node
	case []any:
		for i, val := range node {
			node[i] = stringifyKeys(val)
		}
		return node
	default:
		return v
	}
}
