package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RunConfig is the engine configuration a run executed with, stored as JSON
// so a replay can rebuild an identical manager.
type RunConfig struct {
	PoolSoftMax int               `json:"pool_soft_max"`
	MaxEvents   int               `json:"max_events"`
	Params      map[string]string `json:"params,omitempty"`
}

// marshalConfig converts RunConfig to JSON TEXT for storage.
// Uses json.Encoder with HTML escaping disabled so descriptions containing
// '<' or '&' round-trip byte for byte. Map keys are sorted by encoding/json.
func marshalConfig(cfg RunConfig) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("marshal run config: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalConfig parses JSON TEXT to RunConfig.
func unmarshalConfig(data string) (RunConfig, error) {
	var cfg RunConfig
	if data == "" || data == "{}" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("unmarshal run config: %w", err)
	}
	return cfg, nil
}
