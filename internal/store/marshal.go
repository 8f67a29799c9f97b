package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/gridcalc/internal/ir"
)

// marshalValues converts saved cell values to canonical JSON TEXT, so equal
// states are stored byte for byte the same.
func marshalValues(values map[string]any) (string, error) {
	if values == nil {
		values = map[string]any{}
	}
	data, err := ir.MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return string(data), nil
}

// unmarshalValues parses stored values. Numbers decode as float64, the
// shape facade.State carries them in.
func unmarshalValues(data string) (map[string]any, error) {
	values := map[string]any{}
	if data == "" || data == "{}" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return values, nil
}

// marshalHistory stores the opaque history block canonicalized when it is
// valid JSON, and as the empty string when absent.
func marshalHistory(h json.RawMessage) (string, error) {
	if len(h) == 0 {
		return "", nil
	}
	data, err := ir.MarshalCanonical(h)
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	return string(data), nil
}

func unmarshalHistory(data string) json.RawMessage {
	if data == "" {
		return nil
	}
	return json.RawMessage(data)
}
