package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// State is the persistent part of a workbook: the constants a user entered,
// keyed by Sheet!A1 address, and an opaque block the host may use for
// history. Formulas are not part of the state; they come from the
// description.
type State struct {
	Values  map[string]any  `json:"values"`
	History json.RawMessage `json:"history,omitempty"`
}

// GetState captures every entered cell that still holds a constant.
func (w *Workbook) GetState() State {
	s := State{Values: make(map[string]any)}
	for _, addr := range w.Entered() {
		v, err := w.GetRawValue(addr)
		if err != nil {
			continue
		}
		s.Values[addr] = v
	}
	if len(w.history) > 0 {
		s.History = slices.Clone(w.history)
	}
	return s
}

// SetState writes every value of s and waits for a single recalculation
// pass. Addresses that do not resolve are reported after the valid ones
// have been applied.
func (w *Workbook) SetState(ctx context.Context, s State) error {
	var bad []string
	for _, addr := range slices.Sorted(maps.Keys(s.Values)) {
		if err := w.write(addr, s.Values[addr]); err != nil {
			w.logger.Warn("state value not restored", "cell", addr, "err", err)
			bad = append(bad, addr)
		}
	}
	w.history = slices.Clone(s.History)
	if err := w.wb.Run(ctx); err != nil {
		return err
	}
	w.logger.Debug("state restored", "workbook", w.desc.Name, "values", len(s.Values)-len(bad))
	if len(bad) > 0 {
		return fmt.Errorf("set state: %d addresses did not resolve: %v", len(bad), bad)
	}
	return nil
}

// GetJSONState is GetState encoded as JSON.
func (w *Workbook) GetJSONState() ([]byte, error) {
	data, err := json.Marshal(w.GetState())
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// SetJSONState decodes data and applies it with SetState.
func (w *Workbook) SetJSONState(ctx context.Context, data []byte) error {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	for addr, v := range s.Values {
		if _, ok := v.([]any); ok {
			return fmt.Errorf("decode state: %s holds an array", addr)
		}
	}
	return w.SetState(ctx, s)
}
