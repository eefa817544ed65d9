package optim

import (
	"encoding/json"
	"fmt"
	"os"
)

// checkpoint is the serialized optimizer state.
type checkpoint struct {
	Method Method                 `json:"method"`
	States map[string]*ParamState `json:"states"`
}

// Snapshot serializes the optimizer's state to JSON.
func (o *Optimizer) Snapshot() ([]byte, error) {
	return json.MarshalIndent(checkpoint{Method: o.method, States: o.states}, "", "  ")
}

// Restore replaces the optimizer's state with a previously snapshotted
// one. The checkpoint must come from an optimizer of the same method;
// hyperparameters are structural and are not restored.
func (o *Optimizer) Restore(data []byte) error {
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("optim: decode checkpoint: %w", err)
	}
	if cp.Method != o.method {
		return fmt.Errorf("optim: checkpoint is for method %q, optimizer is %q", cp.Method, o.method)
	}
	if cp.States == nil {
		cp.States = map[string]*ParamState{}
	}
	o.states = cp.States
	return nil
}

// Save writes a checkpoint to path.
func (o *Optimizer) Save(path string) error {
	data, err := o.Snapshot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("optim: write checkpoint: %w", err)
	}
	return nil
}

// Load restores a checkpoint from path.
func (o *Optimizer) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("optim: read checkpoint: %w", err)
	}
	return o.Restore(data)
}
