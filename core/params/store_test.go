package params

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestRegister_Duplicate(t *testing.T) {
	s := NewStore()
	if _, err := s.Register("a", []float64{1}, []int{1}, nil); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := s.Register("a", []float64{2}, []int{1}, nil); err == nil {
		t.Fatal("duplicate Register succeeded, want error")
	}
}

func TestRegister_ShapeMismatch(t *testing.T) {
	s := NewStore()
	if _, err := s.Register("a", []float64{1, 2, 3}, []int{2, 2}, nil); err == nil {
		t.Fatal("Register with mismatched shape succeeded, want error")
	}
}

func TestValue_IsLive(t *testing.T) {
	s := NewStore()
	p, err := s.Register("a", []float64{1, 2}, []int{2}, nil)
	if err != nil {
		t.Fatal(err)
	}

	view := p.Value()
	if err := s.Set("a", []float64{3, 4}); err != nil {
		t.Fatal(err)
	}
	if view[0] != 3 || view[1] != 4 {
		t.Errorf("live view = %v, want [3 4] after Set", view)
	}
}

func TestSet_ConstraintViolationLeavesValueUnchanged(t *testing.T) {
	s := NewStore()
	// 2x2 identity is a valid lower-Cholesky factor.
	if _, err := s.Register("scale", []float64{1, 0, 0, 1}, []int{2, 2}, LowerCholesky{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		value []float64
	}{
		{"zero diagonal", []float64{0, 0, 0.5, 1}},
		{"negative diagonal", []float64{1, 0, 0.5, -2}},
		{"upper triangle nonzero", []float64{1, 0.3, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Set("scale", tt.value)
			var cve *ConstraintViolationError
			if !errors.As(err, &cve) {
				t.Fatalf("Set = %v, want ConstraintViolationError", err)
			}
			p, _ := s.Get("scale")
			want := []float64{1, 0, 0, 1}
			for i, v := range p.Value() {
				if v != want[i] {
					t.Fatalf("stored value mutated to %v after rejected write", p.Value())
				}
			}
		})
	}
}

func TestSet_ValidLowerCholesky(t *testing.T) {
	s := NewStore()
	if _, err := s.Register("scale", []float64{1, 0, 0, 1}, []int{2, 2}, LowerCholesky{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("scale", []float64{2, 0, -0.5, 0.3}); err != nil {
		t.Fatalf("Set valid factor: %v", err)
	}
}

func TestPositive_FreeRoundTrip(t *testing.T) {
	s := NewStore()
	if _, err := s.Register("variance", []float64{0.5}, []int{1}, Positive{}); err != nil {
		t.Fatal(err)
	}

	free, err := s.GetFree("variance")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(free[0]-math.Log(0.5)) > 1e-15 {
		t.Errorf("free = %v, want log(0.5)", free[0])
	}

	// Any free value maps back to an admissible parameter.
	if err := s.SetFree("variance", []float64{-40}); err != nil {
		t.Fatal(err)
	}
	p, _ := s.Get("variance")
	if !(p.Value()[0] > 0) {
		t.Errorf("value after SetFree = %v, want > 0", p.Value()[0])
	}
}

func TestLowerCholesky_FreeRoundTrip(t *testing.T) {
	c := LowerCholesky{}
	shape := []int{2, 2, 2} // batch of two 2x2 factors
	value := []float64{
		1, 0, 0.5, 2,
		3, 0, -1, 0.25,
	}
	if err := c.Check(value, shape); err != nil {
		t.Fatal(err)
	}
	if got := c.FreeDim(shape); got != 6 {
		t.Fatalf("FreeDim = %d, want 6", got)
	}

	round := c.FromFree(c.ToFree(value, shape), shape)
	for i := range value {
		if math.Abs(round[i]-value[i]) > 1e-12 {
			t.Fatalf("round trip[%d] = %v, want %v", i, round[i], value[i])
		}
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	build := func() *Store {
		s := NewStore()
		if _, err := s.Register("loc", []float64{0, 0}, []int{2}, nil); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Register("scale", []float64{1, 0, 0, 1}, []int{2, 2}, LowerCholesky{}); err != nil {
			t.Fatal(err)
		}
		return s
	}

	src := build()
	if err := src.Set("loc", []float64{1.5, -2}); err != nil {
		t.Fatal(err)
	}
	if err := src.Set("scale", []float64{0.5, 0, 0.1, 0.5}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := src.SaveFile(path); err != nil {
		t.Fatal(err)
	}

	dst := build()
	if err := dst.LoadFile(path); err != nil {
		t.Fatal(err)
	}

	for _, name := range src.Names() {
		sp, _ := src.Get(name)
		dp, _ := dst.Get(name)
		for i := range sp.Value() {
			if sp.Value()[i] != dp.Value()[i] {
				t.Errorf("%s[%d] = %v after restore, want %v", name, i, dp.Value()[i], sp.Value()[i])
			}
		}
	}
}

func TestRestore_UnknownParameter(t *testing.T) {
	s := NewStore()
	if err := s.Restore([]byte(`{"ghost": {"shape": [1], "value": [1]}}`)); err == nil {
		t.Fatal("Restore with unknown parameter succeeded, want error")
	}
}
