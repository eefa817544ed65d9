package optim

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidatesHyperparameters(t *testing.T) {
	tests := []struct {
		name   string
		method Method
		cfg    Config
		ok     bool
	}{
		{"adam defaults", Adam, Config{}, true},
		{"adam custom", Adam, Config{LR: 0.05, Beta1: 0.8, Beta2: 0.95, Eps: 1e-10}, true},
		{"adam beta1 too large", Adam, Config{Beta1: 1.0}, false},
		{"adam negative lr", Adam, Config{LR: -1}, false},
		{"clipped adam bad clip", ClippedAdam, Config{ClipNorm: -2}, false},
		{"rmsprop defaults", RMSProp, Config{}, true},
		{"rmsprop bad alpha", RMSProp, Config{Alpha: 1.5}, false},
		{"sgd defaults", SGD, Config{}, true},
		{"sgd bad momentum", SGD, Config{Momentum: 1.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.method, tt.cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSGD_DescendsQuadratic(t *testing.T) {
	o, err := New(SGD, Config{LR: 0.1})
	require.NoError(t, err)

	// Minimize f(x) = x^2 from x = 4.
	x := []float64{4}
	values := map[string][]float64{"x": x}
	for i := 0; i < 100; i++ {
		require.NoError(t, o.Step(values, map[string][]float64{"x": {2 * x[0]}}))
	}
	assert.InDelta(t, 0, x[0], 1e-6)
	assert.Equal(t, 100, o.StepCount("x"))
}

func TestAdam_DescendsQuadratic(t *testing.T) {
	o, err := New(Adam, Config{LR: 0.1})
	require.NoError(t, err)

	x := []float64{4}
	values := map[string][]float64{"x": x}
	for i := 0; i < 500; i++ {
		require.NoError(t, o.Step(values, map[string][]float64{"x": {2 * x[0]}}))
	}
	assert.InDelta(t, 0, x[0], 1e-3)
}

func TestRMSProp_DescendsQuadratic(t *testing.T) {
	o, err := New(RMSProp, Config{LR: 0.05})
	require.NoError(t, err)

	x := []float64{-3}
	values := map[string][]float64{"x": x}
	for i := 0; i < 500; i++ {
		require.NoError(t, o.Step(values, map[string][]float64{"x": {2 * x[0]}}))
	}
	assert.InDelta(t, 0, x[0], 1e-2)
}

func TestClippedAdam_ClampsGradientElements(t *testing.T) {
	clipped, err := New(ClippedAdam, Config{LR: 0.1, ClipNorm: 1})
	require.NoError(t, err)
	plain, err := New(Adam, Config{LR: 0.1})
	require.NoError(t, err)

	a := []float64{0}
	b := []float64{0}
	require.NoError(t, clipped.Step(map[string][]float64{"x": a}, map[string][]float64{"x": {1e6}}))
	require.NoError(t, plain.Step(map[string][]float64{"x": b}, map[string][]float64{"x": {1}}))

	// A clamped huge gradient behaves like a unit gradient.
	assert.InDelta(t, b[0], a[0], 1e-9)
}

func TestPerParam_ZeroRateFreezesParameter(t *testing.T) {
	run := func(fixed, free string) {
		dispatch := func(name string) (Config, bool) {
			if name == fixed {
				return Config{LR: 0}, true
			}
			return Config{LR: 0.01}, true
		}
		o, err := NewPerParam(Adam, dispatch)
		require.NoError(t, err)

		values := map[string][]float64{
			fixed: {0},
			free:  {0},
		}
		grads := map[string][]float64{
			fixed: {1},
			free:  {1},
		}
		require.NoError(t, o.Step(values, grads))

		assert.Zero(t, values[fixed][0], "frozen parameter moved")
		assert.NotZero(t, values[free][0], "free parameter did not move")
		// Frozen parameters still advance their step counts.
		assert.Equal(t, 1, o.StepCount(fixed))
		assert.Equal(t, 1, o.StepCount(free))
	}

	run("loc", "scale")
	run("scale", "loc")
}

func TestCheckpoint_RoundTripPreservesStepCounts(t *testing.T) {
	o, err := New(Adam, Config{LR: 0.01})
	require.NoError(t, err)
	o2, err := New(Adam, Config{LR: 0.01})
	require.NoError(t, err)

	x := []float64{1}
	values := map[string][]float64{"loc": x}
	grads := map[string][]float64{"loc": {0.5}}

	require.NoError(t, o.Step(values, grads))
	require.Equal(t, 1, o.StepCount("loc"))

	path := filepath.Join(t.TempDir(), "adam.ckpt")
	require.NoError(t, o.Save(path))

	require.NoError(t, o.Step(values, grads))
	require.Equal(t, 2, o.StepCount("loc"))

	require.NoError(t, o2.Load(path))
	require.NoError(t, o2.Step(values, grads))
	assert.Equal(t, 2, o2.StepCount("loc"), "restored optimizer resumes from the saved step count")

	// Moment accumulators round-trip too.
	st := o2.State()["loc"]
	assert.NotEmpty(t, st.M)
	assert.NotEmpty(t, st.V)
}

func TestRestore_RejectsMethodMismatch(t *testing.T) {
	adam, err := New(Adam, Config{})
	require.NoError(t, err)
	sgd, err := New(SGD, Config{})
	require.NoError(t, err)

	require.NoError(t, adam.Step(map[string][]float64{"x": {1}}, map[string][]float64{"x": {1}}))
	data, err := adam.Snapshot()
	require.NoError(t, err)
	assert.Error(t, sgd.Restore(data))
}

func TestStep_UnknownParameter(t *testing.T) {
	o, err := New(SGD, Config{})
	require.NoError(t, err)
	err = o.Step(map[string][]float64{}, map[string][]float64{"ghost": {1}})
	assert.Error(t, err)
}

func TestSGD_Momentum(t *testing.T) {
	o, err := New(SGD, Config{LR: 0.1, Momentum: 0.9})
	require.NoError(t, err)

	x := []float64{0}
	values := map[string][]float64{"x": x}
	require.NoError(t, o.Step(values, map[string][]float64{"x": {1}}))
	first := -x[0]
	require.NoError(t, o.Step(values, map[string][]float64{"x": {1}}))
	second := -x[0] - first

	// Velocity accumulates: the second step under a constant gradient is
	// larger than the first by the momentum factor.
	assert.True(t, second > first, "second step %v not larger than first %v", second, first)
	assert.InDelta(t, first*(1+0.9), second, 1e-12)
}

func TestAdam_FirstStepMagnitude(t *testing.T) {
	o, err := New(Adam, Config{LR: 0.1})
	require.NoError(t, err)

	x := []float64{0}
	require.NoError(t, o.Step(map[string][]float64{"x": x}, map[string][]float64{"x": {3}}))

	// With bias correction the first Adam step is ~lr regardless of
	// gradient scale.
	assert.InDelta(t, 0.1, math.Abs(x[0]), 1e-6)
}
