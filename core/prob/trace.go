package prob

import (
	"fmt"
	"math/rand"
)

// Site records one probabilistic statement executed under a trace: either a
// latent sample or an observation scored against a distribution.
type Site struct {
	Name     string
	Value    []float64
	LogProb  float64
	Observed bool

	// Noise is the standard-normal vector behind a reparameterized draw,
	// recorded so a later trace can replay the same randomness against
	// perturbed parameters. Nil for observed or replayed sites.
	Noise []float64
}

// Trace executes a probabilistic program once, recording every sample site.
// Before running the program, a trace can be primed to replay fixed values
// or fixed noise at chosen sites; unprimed sites draw fresh randomness.
//
// Site names must be unique within one trace; a duplicate name is a
// programming error and is reported rather than silently overwritten.
type Trace struct {
	rng    *rand.Rand
	replay map[string][]float64
	noise  map[string][]float64
	sites  map[string]*Site
	order  []string
}

// NewTrace returns an empty trace drawing randomness from rng. A nil rng is
// only valid if every latent site is primed via ReplayValue or FixNoise.
func NewTrace(rng *rand.Rand) *Trace {
	return &Trace{
		rng:    rng,
		replay: make(map[string][]float64),
		noise:  make(map[string][]float64),
		sites:  make(map[string]*Site),
	}
}

// ReplayValue primes the trace to return value at the named site instead of
// drawing. The site still scores the value under its distribution.
func (t *Trace) ReplayValue(name string, value []float64) {
	t.replay[name] = value
}

// FixNoise primes the named site to be drawn reparameterized from eps.
func (t *Trace) FixNoise(name string, eps []float64) {
	t.noise[name] = eps
}

// Sample executes a latent sample site. Priming determines the value:
// a replayed value wins over fixed noise, which wins over a fresh draw.
func (t *Trace) Sample(name string, d Distribution) ([]float64, error) {
	if _, ok := t.sites[name]; ok {
		return nil, fmt.Errorf("prob: duplicate sample site %q", name)
	}

	site := &Site{Name: name}
	switch {
	case t.replay[name] != nil:
		site.Value = t.replay[name]
	case t.noise[name] != nil:
		rd, ok := d.(Reparameterized)
		if !ok {
			return nil, fmt.Errorf("prob: site %q has fixed noise but a non-reparameterized distribution", name)
		}
		site.Value = rd.SampleWithNoise(t.noise[name])
	default:
		if t.rng == nil {
			return nil, fmt.Errorf("prob: site %q needs randomness but the trace has no source", name)
		}
		if rd, ok := d.(Reparameterized); ok {
			site.Noise = standardNormal(t.rng, rd.NoiseDim())
			site.Value = rd.SampleWithNoise(site.Noise)
		} else {
			site.Value = d.Sample(t.rng)
		}
	}
	site.LogProb = d.LogProb(site.Value)

	t.sites[name] = site
	t.order = append(t.order, name)
	return site.Value, nil
}

// Observe executes an observation site: value is scored under d and
// recorded, never drawn.
func (t *Trace) Observe(name string, d Distribution, value []float64) (float64, error) {
	if _, ok := t.sites[name]; ok {
		return 0, fmt.Errorf("prob: duplicate sample site %q", name)
	}
	if len(value) != d.Dim() {
		return 0, fmt.Errorf("prob: site %q observed value has length %d, want %d", name, len(value), d.Dim())
	}

	site := &Site{Name: name, Value: value, LogProb: d.LogProb(value), Observed: true}
	t.sites[name] = site
	t.order = append(t.order, name)
	return site.LogProb, nil
}

// Site returns the recorded site with the given name.
func (t *Trace) Site(name string) (*Site, bool) {
	s, ok := t.sites[name]
	return s, ok
}

// Sites returns the recorded sites in execution order.
func (t *Trace) Sites() []*Site {
	out := make([]*Site, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.sites[name])
	}
	return out
}

// LogJoint sums the log densities of every recorded site.
func (t *Trace) LogJoint() float64 {
	total := 0.0
	for _, name := range t.order {
		total += t.sites[name].LogProb
	}
	return total
}
