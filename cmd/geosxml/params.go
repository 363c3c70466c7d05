package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseParameterFlags turns repeated name=value flags into overrides. A later flag wins.
func parseParameterFlags(flags []string) (map[string]string, error) {
	overrides := make(map[string]string, len(flags))
	for _, flag := range flags {
		name, value, ok := strings.Cut(flag, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", flag)
		}
		overrides[name] = strings.TrimSpace(value)
	}
	return overrides, nil
}

// loadParametersFile reads a flat YAML mapping of parameter names to values.
// Scalars of any type are accepted and rendered as written.
func loadParametersFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse parameters file %s: %w", path, err)
	}

	overrides := make(map[string]string, len(raw))
	for name, value := range raw {
		switch value.(type) {
		case map[string]interface{}, []interface{}:
			return nil, fmt.Errorf("parameter %q in %s must be a scalar", name, path)
		case nil:
			overrides[name] = ""
		default:
			overrides[name] = fmt.Sprint(value)
		}
	}
	return overrides, nil
}

// collectOverrides merges the parameters file with -p flags, flags taking precedence
func collectOverrides(file string, flags []string) (map[string]string, error) {
	overrides := make(map[string]string)
	if file != "" {
		fromFile, err := loadParametersFile(file)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			overrides[k] = v
		}
	}

	fromFlags, err := parseParameterFlags(flags)
	if err != nil {
		return nil, err
	}
	for k, v := range fromFlags {
		overrides[k] = v
	}
	return overrides, nil
}
