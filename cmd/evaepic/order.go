package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// keyValueFlag collects repeatable key=value order fields.
type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	var pairs []string
	for key, value := range *kv {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("order key is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = parts[1]
	return nil
}

// buildOrder merges an optional YAML/JSON order file with -set overrides.
// Numeric override values are sent as numbers.
func buildOrder(orderFile string, overrides keyValueFlag) (map[string]any, error) {
	var order map[string]any
	if path := strings.TrimSpace(orderFile); path != "" {
		fileOrder, err := readOrderFile(path)
		if err != nil {
			return nil, err
		}
		order = fileOrder
	}
	if len(overrides) > 0 {
		if order == nil {
			order = map[string]any{}
		}
		for key, value := range overrides {
			if n, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				order[key] = n
				continue
			}
			order[key] = value
		}
	}
	if len(order) == 0 {
		return nil, nil
	}
	return order, nil
}

func readOrderFile(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open order file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read order file %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("order file %s is empty", path)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse order file %s: %w", path, err)
	}
	return normalizeYAML(raw).(map[string]any), nil
}

// normalizeYAML converts yaml.v3 integers to float64 so the order encodes
// the same way a JSON-decoded order would.
func normalizeYAML(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeYAML(item)
		}
		return out
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return v
	}
}
