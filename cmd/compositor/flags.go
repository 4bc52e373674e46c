package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alexisbeaulieu97/compositor/internal/config"
)

func validateRunOptions(opts runOptions) error {
	if strings.TrimSpace(opts.Path) == "" {
		return fmt.Errorf("action path is required")
	}
	if _, err := os.Stat(opts.Path); err != nil {
		return fmt.Errorf("action path does not exist: %w", err)
	}
	return nil
}

// parsePairs converts repeated name=value flags into an ordered mapping. A later
// value for the same name wins.
func parsePairs(flag string, values []string) (config.Mapping, error) {
	var out config.Mapping
	index := make(map[string]int, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected name=value", flag, raw)
		}
		if i, seen := index[key]; seen {
			out[i].Value = value
			continue
		}
		index[key] = len(out)
		out = append(out, config.KeyValue{Key: key, Value: value})
	}
	return out, nil
}
