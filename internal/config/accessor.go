package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetByPath retrieves a config value by dot-notation path (e.g. "server.port").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}
	var current any = m
	for _, key := range strings.Split(path, ".") {
		section, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
		if current, ok = section[key]; !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
	}
	return current, nil
}

// SetByPath sets a leaf value by dot-notation path. String input is
// converted to the type of the current value, so "server.port" "abc" is an
// error rather than a silent zero. Only known keys can be set.
func SetByPath(cfg *Config, path string, value any) error {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return fmt.Errorf("path must name a section and a key: %q", path)
	}
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	section, ok := m[parts[0]].(map[string]any)
	if !ok {
		return fmt.Errorf("unknown config section: %s", parts[0])
	}
	for _, key := range parts[1 : len(parts)-1] {
		if section, ok = section[key].(map[string]any); !ok {
			return fmt.Errorf("unknown config key: %s", path)
		}
	}

	leaf := parts[len(parts)-1]
	converted, err := convertLike(section[leaf], value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	section[leaf] = converted

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var updated Config
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	// Leaves absent from the map (omitempty) are only accepted if the struct
	// actually has them.
	if _, err := GetByPath(&updated, path); err != nil {
		return fmt.Errorf("unknown config key: %s", path)
	}
	*cfg = updated
	return nil
}

// convertLike parses string input into the JSON type of current. A nil
// current (unset optional key) keeps the input as a string.
func convertLike(current, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", s)
		}
		return b, nil
	case float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		return f, nil
	default:
		return s, nil
	}
}

// ListPaths returns all settable config paths with their current values.
func ListPaths(cfg *Config) map[string]any {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	result := make(map[string]any)
	flatten("", m, result)
	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func flatten(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(path, sub, result)
			continue
		}
		result[path] = v
	}
}
