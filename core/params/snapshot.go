package params

import (
	"encoding/json"
	"fmt"
	"os"
)

// snapshotEntry is the serialized form of one parameter.
type snapshotEntry struct {
	Shape []int     `json:"shape"`
	Value []float64 `json:"value"`
}

// Snapshot serializes every registered parameter value to JSON. Constraints
// are structural (attached at registration) and are not serialized.
func (s *Store) Snapshot() ([]byte, error) {
	out := make(map[string]snapshotEntry, len(s.params))
	for name, p := range s.params {
		v := make([]float64, len(p.value))
		copy(v, p.value)
		out[name] = snapshotEntry{Shape: p.shape, Value: v}
	}
	return json.MarshalIndent(out, "", "  ")
}

// Restore writes snapshot values back into already-registered parameters.
// Every entry must match a registered parameter's shape and satisfy its
// constraint; unknown names are an error so a snapshot cannot silently
// drop parameters.
func (s *Store) Restore(data []byte) error {
	var in map[string]snapshotEntry
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("params: decode snapshot: %w", err)
	}
	for name, e := range in {
		p, ok := s.params[name]
		if !ok {
			return fmt.Errorf("params: snapshot contains unknown parameter %q", name)
		}
		if sizeOf(e.Shape) != len(e.Value) || len(e.Value) != len(p.value) {
			return fmt.Errorf("params: snapshot entry %q has shape %v with %d values, want %d values",
				name, e.Shape, len(e.Value), len(p.value))
		}
		if err := s.Set(name, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// SaveFile writes a snapshot to path.
func (s *Store) SaveFile(path string) error {
	data, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("params: write snapshot: %w", err)
	}
	return nil
}

// LoadFile restores a snapshot from path.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("params: read snapshot: %w", err)
	}
	return s.Restore(data)
}
