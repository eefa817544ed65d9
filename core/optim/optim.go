// Package optim implements first-order stochastic optimizers over named
// parameter vectors, with per-parameter hyperparameter dispatch and
// checkpointable state.
//
// Optimizers update free-space parameter vectors in place given gradients
// of a loss. Hyperparameters resolve per parameter name, so individual
// parameters can run with their own learning rates (a rate of zero freezes
// a parameter while its optimizer state still advances). State, meaning
// step counts and moment accumulators, serializes to JSON and restores
// exactly, so a training run can resume from a checkpoint mid-schedule.
package optim

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Method selects the update rule.
type Method string

const (
	// Adam is the Kingma-Ba adaptive-moment estimator.
	Adam Method = "adam"
	// ClippedAdam is Adam with elementwise gradient clamping.
	ClippedAdam Method = "clipped_adam"
	// RMSProp scales steps by a decaying average of squared gradients.
	RMSProp Method = "rmsprop"
	// SGD is plain stochastic gradient descent with optional momentum.
	SGD Method = "sgd"
)

// Config carries the hyperparameters of one parameter's updates. Zero
// fields are filled from the method's defaults before validation, so a
// per-parameter dispatch function only needs to set the fields it cares
// about.
type Config struct {
	// LR is the learning rate. Zero is honored as-is and freezes the
	// parameter; a negative rate is invalid.
	LR float64

	// Beta1 and Beta2 are Adam's moment decays, in (0, 1).
	Beta1 float64
	Beta2 float64

	// Eps guards divisions by the second-moment estimate.
	Eps float64

	// ClipNorm bounds each gradient element's magnitude (ClippedAdam).
	ClipNorm float64

	// Alpha is RMSProp's squared-gradient decay, in (0, 1).
	Alpha float64

	// Momentum is SGD's velocity decay, in [0, 1).
	Momentum float64
}

func defaultConfig(m Method) Config {
	switch m {
	case Adam, ClippedAdam:
		return Config{LR: 1e-3, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, ClipNorm: 10}
	case RMSProp:
		return Config{LR: 1e-2, Alpha: 0.99, Eps: 1e-8}
	default:
		return Config{LR: 1e-2}
	}
}

func (c Config) validate(m Method) error {
	if c.LR < 0 {
		return fmt.Errorf("optim: learning rate must be >= 0, got %v", c.LR)
	}
	switch m {
	case Adam, ClippedAdam:
		if c.Beta1 <= 0 || c.Beta1 >= 1 {
			return fmt.Errorf("optim: beta1 must be in (0, 1), got %v", c.Beta1)
		}
		if c.Beta2 <= 0 || c.Beta2 >= 1 {
			return fmt.Errorf("optim: beta2 must be in (0, 1), got %v", c.Beta2)
		}
		if c.Eps <= 0 {
			return fmt.Errorf("optim: eps must be positive, got %v", c.Eps)
		}
		if m == ClippedAdam && c.ClipNorm <= 0 {
			return fmt.Errorf("optim: clip norm must be positive, got %v", c.ClipNorm)
		}
	case RMSProp:
		if c.Alpha <= 0 || c.Alpha >= 1 {
			return fmt.Errorf("optim: alpha must be in (0, 1), got %v", c.Alpha)
		}
		if c.Eps <= 0 {
			return fmt.Errorf("optim: eps must be positive, got %v", c.Eps)
		}
	case SGD:
		if c.Momentum < 0 || c.Momentum >= 1 {
			return fmt.Errorf("optim: momentum must be in [0, 1), got %v", c.Momentum)
		}
	default:
		return fmt.Errorf("optim: unknown method %q", m)
	}
	return nil
}

// merged fills zero fields of c from the method defaults. An explicitly
// zero learning rate survives: freezing a parameter is the documented way
// to exclude it from optimization.
func merged(c Config, m Method, lrSet bool) Config {
	d := defaultConfig(m)
	if !lrSet && c.LR == 0 {
		c.LR = d.LR
	}
	if c.Beta1 == 0 {
		c.Beta1 = d.Beta1
	}
	if c.Beta2 == 0 {
		c.Beta2 = d.Beta2
	}
	if c.Eps == 0 {
		c.Eps = d.Eps
	}
	if c.ClipNorm == 0 {
		c.ClipNorm = d.ClipNorm
	}
	if c.Alpha == 0 {
		c.Alpha = d.Alpha
	}
	return c
}

// ParamState is one parameter's optimizer state.
type ParamState struct {
	// Step counts completed updates for the parameter.
	Step int `json:"step"`
	// M is the first-moment accumulator (Adam) or velocity (SGD momentum).
	M []float64 `json:"m,omitempty"`
	// V is the second-moment accumulator (Adam, RMSProp).
	V []float64 `json:"v,omitempty"`
}

// Optimizer applies one update rule across named parameters.
type Optimizer struct {
	method   Method
	dispatch func(name string) (Config, bool)
	resolved map[string]Config
	states   map[string]*ParamState
}

// New builds an optimizer applying cfg to every parameter. Zero cfg fields
// take method defaults; pass Config{} for an all-defaults optimizer.
func New(m Method, cfg Config) (*Optimizer, error) {
	full := merged(cfg, m, false)
	if err := full.validate(m); err != nil {
		return nil, err
	}
	return &Optimizer{
		method:   m,
		dispatch: func(string) (Config, bool) { return cfg, false },
		resolved: map[string]Config{},
		states:   map[string]*ParamState{},
	}, nil
}

// NewPerParam builds an optimizer whose hyperparameters resolve per
// parameter name. The dispatch function's second result reports whether
// the learning rate is set deliberately; returning (Config{LR: 0}, true)
// freezes that parameter.
func NewPerParam(m Method, dispatch func(name string) (Config, bool)) (*Optimizer, error) {
	switch m {
	case Adam, ClippedAdam, RMSProp, SGD:
	default:
		return nil, fmt.Errorf("optim: unknown method %q", m)
	}
	return &Optimizer{
		method:   m,
		dispatch: dispatch,
		resolved: map[string]Config{},
		states:   map[string]*ParamState{},
	}, nil
}

// Method returns the optimizer's update rule.
func (o *Optimizer) Method() Method { return o.method }

func (o *Optimizer) configFor(name string) (Config, error) {
	if c, ok := o.resolved[name]; ok {
		return c, nil
	}
	raw, lrSet := o.dispatch(name)
	c := merged(raw, o.method, lrSet)
	if err := c.validate(o.method); err != nil {
		return Config{}, fmt.Errorf("%w (parameter %q)", err, name)
	}
	o.resolved[name] = c
	return c, nil
}

// Step applies one update to every parameter with a gradient. Parameter
// vectors are mutated in place; the step count of every touched parameter
// advances even when its learning rate is zero, so freezing a parameter
// does not desynchronize a later unfreeze from the checkpoint schedule.
func (o *Optimizer) Step(values map[string][]float64, grads map[string][]float64) error {
	names := make([]string, 0, len(grads))
	for name := range grads {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := values[name]
		if !ok {
			return fmt.Errorf("optim: gradient for unknown parameter %q", name)
		}
		grad := grads[name]
		if len(grad) != len(value) {
			return fmt.Errorf("optim: parameter %q has %d elements but gradient has %d", name, len(value), len(grad))
		}
		cfg, err := o.configFor(name)
		if err != nil {
			return err
		}
		st := o.states[name]
		if st == nil {
			st = &ParamState{}
			o.states[name] = st
		}
		o.update(cfg, st, value, grad)
	}
	return nil
}

func (o *Optimizer) update(cfg Config, st *ParamState, value, grad []float64) {
	st.Step++
	switch o.method {
	case SGD:
		if cfg.Momentum == 0 {
			floats.AddScaled(value, -cfg.LR, grad)
			return
		}
		if st.M == nil {
			st.M = make([]float64, len(value))
		}
		floats.Scale(cfg.Momentum, st.M)
		floats.Add(st.M, grad)
		floats.AddScaled(value, -cfg.LR, st.M)

	case RMSProp:
		if st.V == nil {
			st.V = make([]float64, len(value))
		}
		for i := range value {
			st.V[i] = cfg.Alpha*st.V[i] + (1-cfg.Alpha)*grad[i]*grad[i]
			value[i] -= cfg.LR * grad[i] / (math.Sqrt(st.V[i]) + cfg.Eps)
		}

	case Adam, ClippedAdam:
		if st.M == nil {
			st.M = make([]float64, len(value))
			st.V = make([]float64, len(value))
		}
		c1 := 1 - math.Pow(cfg.Beta1, float64(st.Step))
		c2 := 1 - math.Pow(cfg.Beta2, float64(st.Step))
		for i := range value {
			g := grad[i]
			if o.method == ClippedAdam {
				if g > cfg.ClipNorm {
					g = cfg.ClipNorm
				} else if g < -cfg.ClipNorm {
					g = -cfg.ClipNorm
				}
			}
			st.M[i] = cfg.Beta1*st.M[i] + (1-cfg.Beta1)*g
			st.V[i] = cfg.Beta2*st.V[i] + (1-cfg.Beta2)*g*g
			value[i] -= cfg.LR * (st.M[i] / c1) / (math.Sqrt(st.V[i]/c2) + cfg.Eps)
		}
	}
}

// StepCount returns the number of updates applied to the named parameter.
func (o *Optimizer) StepCount(name string) int {
	if st, ok := o.states[name]; ok {
		return st.Step
	}
	return 0
}

// State returns a copy of the optimizer state keyed by parameter name.
func (o *Optimizer) State() map[string]ParamState {
	out := make(map[string]ParamState, len(o.states))
	for name, st := range o.states {
		cp := ParamState{Step: st.Step}
		cp.M = append([]float64(nil), st.M...)
		cp.V = append([]float64(nil), st.V...)
		out[name] = cp
	}
	return out
}
