// Package params implements a name-indexed registry of mutable model
// parameters with constraint transforms.
//
// Parameter values are live: Value returns the backing slice, and an
// external optimizer mutates parameters between model invocations by
// writing through SetFree or Set. Constrained parameters are optimized in
// an unconstrained free space so that every optimizer step lands on an
// admissible value; direct constrained-space writes are validated and
// rejected atomically.
//
// The store performs no locking. Callers that interleave optimization
// steps with reads must serialize access themselves.
package params

import (
	"fmt"
	"sort"
)

// Param is a single named parameter: a flat float64 value with a shape and
// an optional constraint.
type Param struct {
	name       string
	value      []float64
	shape      []int
	constraint Constraint
}

// Name returns the parameter's registry key.
func (p *Param) Name() string { return p.name }

// Value returns the live backing slice. Mutating it directly bypasses
// constraint checking; prefer Store.Set or Store.SetFree.
func (p *Param) Value() []float64 { return p.value }

// Shape returns the parameter's logical shape. The returned slice must not
// be modified.
func (p *Param) Shape() []int { return p.shape }

// Constraint returns the parameter's constraint.
func (p *Param) Constraint() Constraint { return p.constraint }

// Store is the parameter registry.
type Store struct {
	params map[string]*Param
}

// NewStore returns an empty parameter store.
func NewStore() *Store {
	return &Store{params: make(map[string]*Param)}
}

// Register adds a parameter with an initial value. The value is copied.
// A nil constraint means unconstrained. Registration fails if the name is
// taken, the value length disagrees with the shape, or the initial value
// violates the constraint.
func (s *Store) Register(name string, value []float64, shape []int, c Constraint) (*Param, error) {
	if _, ok := s.params[name]; ok {
		return nil, fmt.Errorf("params: %q already registered", name)
	}
	if n := sizeOf(shape); n != len(value) {
		return nil, fmt.Errorf("params: %q value length %d does not match shape %v", name, len(value), shape)
	}
	if c == nil {
		c = None{}
	}
	if err := c.Check(value, shape); err != nil {
		return nil, &ConstraintViolationError{Param: name, Constraint: c.Name(), Reason: err.Error()}
	}

	v := make([]float64, len(value))
	copy(v, value)
	p := &Param{name: name, value: v, shape: append([]int(nil), shape...), constraint: c}
	s.params[name] = p
	return p, nil
}

// Get returns the parameter registered under name.
func (s *Store) Get(name string) (*Param, bool) {
	p, ok := s.params[name]
	return p, ok
}

// Names returns all registered parameter names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.params))
	for name := range s.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set overwrites a parameter's value in constrained space. The write is
// validated first: on a ConstraintViolationError the stored value is
// unchanged. The value is copied into the live backing slice, so views
// aliasing the parameter observe the update.
func (s *Store) Set(name string, value []float64) error {
	p, ok := s.params[name]
	if !ok {
		return fmt.Errorf("params: unknown parameter %q", name)
	}
	if len(value) != len(p.value) {
		return fmt.Errorf("params: %q value length %d, want %d", name, len(value), len(p.value))
	}
	if err := p.constraint.Check(value, p.shape); err != nil {
		return &ConstraintViolationError{Param: name, Constraint: p.constraint.Name(), Reason: err.Error()}
	}
	copy(p.value, value)
	return nil
}

// FreeDim returns the free-space dimension of the named parameter, or zero
// if the name is unknown.
func (s *Store) FreeDim(name string) int {
	p, ok := s.params[name]
	if !ok {
		return 0
	}
	return p.constraint.FreeDim(p.shape)
}

// GetFree returns the parameter's current value mapped into free space.
func (s *Store) GetFree(name string) ([]float64, error) {
	p, ok := s.params[name]
	if !ok {
		return nil, fmt.Errorf("params: unknown parameter %q", name)
	}
	return p.constraint.ToFree(p.value, p.shape), nil
}

// SetFree maps a free vector through the parameter's constraint and writes
// the result into the live value. Any free vector is admissible.
func (s *Store) SetFree(name string, free []float64) error {
	p, ok := s.params[name]
	if !ok {
		return fmt.Errorf("params: unknown parameter %q", name)
	}
	if want := p.constraint.FreeDim(p.shape); len(free) != want {
		return fmt.Errorf("params: %q free length %d, want %d", name, len(free), want)
	}
	copy(p.value, p.constraint.FromFree(free, p.shape))
	return nil
}
