// Package infer drives stochastic variational inference: it estimates the
// evidence lower bound (ELBO) of a model/guide pair and walks the shared
// parameter store uphill with a stochastic optimizer.
//
// The gradient estimator is deliberately simple and robust: each step
// draws one set of standard-normal base noise for the guide's latent
// sites, which makes the single-sample ELBO a deterministic function of
// the free parameter vectors, then differentiates it by central finite
// differences. Every latent site must therefore carry a reparameterized
// distribution. The cost per step is two ELBO evaluations per free scalar,
// which is the right trade for models whose learned state is a handful of
// small vectors and matrices.
package infer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/adalundhe/sparsegp/core/optim"
	"github.com/adalundhe/sparsegp/core/params"
	"github.com/adalundhe/sparsegp/core/prob"
)

// DefaultFDStep is the finite-difference half-width in free space.
const DefaultFDStep = 1e-5

// Program is a probabilistic program executed under a trace.
type Program func(*prob.Trace) error

// SVI optimizes a guide's parameters to tighten the ELBO of a model.
//
// The model and guide read live values from the shared store on every
// invocation; SVI serializes all of its own reads and writes within a
// step, and callers must not interleave other store writes with Step.
type SVI struct {
	model  Program
	guide  Program
	store  *params.Store
	opt    *optim.Optimizer
	rng    *rand.Rand
	fdStep float64
	names  []string
	logger *slog.Logger
}

// Option configures an SVI driver.
type Option func(*SVI)

// WithFDStep overrides the finite-difference half-width.
func WithFDStep(h float64) Option {
	return func(s *SVI) { s.fdStep = h }
}

// WithParams restricts optimization to the named parameters. The default
// optimizes every parameter registered in the store.
func WithParams(names ...string) Option {
	return func(s *SVI) { s.names = names }
}

// WithLogger sets the progress logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *SVI) { s.logger = l }
}

// New builds an SVI driver over the given store, optimizer and programs.
// rng supplies the per-step base noise.
func New(store *params.Store, opt *optim.Optimizer, model, guide Program, rng *rand.Rand, opts ...Option) *SVI {
	s := &SVI{
		model:  model,
		guide:  guide,
		store:  store,
		opt:    opt,
		rng:    rng,
		fdStep: DefaultFDStep,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.names == nil {
		s.names = store.Names()
	}
	return s
}

// Step performs one optimization step and returns the ELBO estimate at the
// pre-step parameters. Errors from the model or guide, including
// factorization failures at a perturbed parameter point, propagate
// unretried.
func (s *SVI) Step() (float64, error) {
	noise, err := s.drawNoise()
	if err != nil {
		return 0, err
	}

	base, err := s.elbo(noise)
	if err != nil {
		return 0, err
	}

	free := make(map[string][]float64, len(s.names))
	grads := make(map[string][]float64, len(s.names))
	h := s.fdStep
	for _, name := range s.names {
		f, err := s.store.GetFree(name)
		if err != nil {
			return 0, err
		}
		if len(f) == 0 {
			continue
		}
		g := make([]float64, len(f))
		for i := range f {
			orig := f[i]

			f[i] = orig + h
			if err := s.store.SetFree(name, f); err != nil {
				return 0, err
			}
			up, err := s.elbo(noise)
			if err != nil {
				return 0, err
			}

			f[i] = orig - h
			if err := s.store.SetFree(name, f); err != nil {
				return 0, err
			}
			down, err := s.elbo(noise)
			if err != nil {
				return 0, err
			}

			f[i] = orig
			if err := s.store.SetFree(name, f); err != nil {
				return 0, err
			}

			// Gradient of the loss -ELBO.
			g[i] = -(up - down) / (2 * h)
		}
		free[name] = f
		grads[name] = g
	}

	if err := s.opt.Step(free, grads); err != nil {
		return 0, err
	}
	for name, f := range free {
		if err := s.store.SetFree(name, f); err != nil {
			return 0, err
		}
	}
	return base, nil
}

// Run performs steps optimization steps, honoring ctx cancellation between
// steps and logging progress. It returns the last ELBO estimate.
func (s *SVI) Run(ctx context.Context, steps int) (float64, error) {
	logEvery := steps / 10
	if logEvery < 1 {
		logEvery = 1
	}

	last := 0.0
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		default:
		}

		elbo, err := s.Step()
		if err != nil {
			return last, fmt.Errorf("infer: step %d: %w", i, err)
		}
		last = elbo
		if (i+1)%logEvery == 0 {
			s.logger.Debug("svi progress", "step", i+1, "elbo", elbo)
		}
	}
	return last, nil
}

// drawNoise runs the guide once with fresh randomness and returns the
// standard-normal base noise of every latent site.
func (s *SVI) drawNoise() (map[string][]float64, error) {
	tr := prob.NewTrace(s.rng)
	if err := s.guide(tr); err != nil {
		return nil, err
	}
	noise := make(map[string][]float64)
	for _, site := range tr.Sites() {
		if site.Observed {
			continue
		}
		if site.Noise == nil {
			return nil, fmt.Errorf("infer: latent site %q is not reparameterized", site.Name)
		}
		noise[site.Name] = site.Noise
	}
	if len(noise) == 0 {
		return nil, fmt.Errorf("infer: guide declared no latent sites")
	}
	return noise, nil
}

// elbo evaluates the single-sample bound under fixed base noise: the guide
// runs reparameterized on the noise, the model replays the guide's latent
// values, and the bound is the model's log joint minus the guide's.
func (s *SVI) elbo(noise map[string][]float64) (float64, error) {
	gt := prob.NewTrace(nil)
	for name, eps := range noise {
		gt.FixNoise(name, eps)
	}
	if err := s.guide(gt); err != nil {
		return 0, err
	}

	mt := prob.NewTrace(nil)
	for _, site := range gt.Sites() {
		if !site.Observed {
			mt.ReplayValue(site.Name, site.Value)
		}
	}
	if err := s.model(mt); err != nil {
		return 0, err
	}

	return mt.LogJoint() - gt.LogJoint(), nil
}
