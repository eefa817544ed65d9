// Package gp implements a sparse variational Gaussian process (SVGP) model.
//
// The model approximates an intractable GP posterior with a small, fixed
// set of M inducing points carrying a multivariate-normal variational
// posterior q(u) = N(uLoc, S S^T). Training has O(N M^2) cost and
// prediction O(M^3), independent of how large the training set grows.
//
// References:
//
//	Hensman, Matthews, Ghahramani. Scalable variational Gaussian process
//	classification. AISTATS 2015.
package gp

import (
	"fmt"

	"github.com/adalundhe/sparsegp/core/kernel"
	"github.com/adalundhe/sparsegp/core/likelihood"
	"github.com/adalundhe/sparsegp/core/params"
	"github.com/adalundhe/sparsegp/core/prob"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// DefaultJitter is added to covariance diagonals ahead of Cholesky
// factorization when the configuration does not override it.
const DefaultJitter = 1e-6

// Config carries the optional knobs of an SVGP model.
type Config struct {
	// LatentShape is the batch shape of the latent process; its product is
	// the number of independent latent functions. Empty means it is derived
	// from the training outputs: one latent function per output row, or a
	// single function when outputs are absent or have one row. For
	// multi-class models the last entry is the class count.
	LatentShape []int

	// Jitter is the diagonal stabilizer for Cholesky factorizations.
	// Defaults to DefaultJitter. Fixed at construction, never learned.
	Jitter float64

	// Name prefixes every parameter and sample site of this instance so
	// that multiple models can share one store and one trace. Defaults to
	// a fresh unique name.
	Name string
}

// SVGP is a sparse variational Gaussian process model.
//
// The model owns three learned parameters in the injected store: the
// inducing inputs "<name>.Xu", the posterior mean "<name>.u_loc" and the
// lower-Cholesky posterior scale "<name>.u_scale_tril". All reads go
// through the store, so an external optimizer mutating the store is
// observed live on the next invocation. The model itself performs no
// locking; interleaved optimization and reads must be serialized by the
// caller.
type SVGP struct {
	name   string
	store  *params.Store
	kern   kernel.Kernel
	lik    likelihood.Likelihood
	X      *mat.Dense // N x D training inputs
	y      *mat.Dense // latent x N training outputs, nil for prior-predictive mode
	latent int
	m      int // inducing point count, fixed at construction
	d      int // input feature count
	jitter float64
}

// New constructs an SVGP model and registers its parameters.
//
// X holds one training input per row. y holds training outputs with one
// column per input row, or nil to put the model in prior-predictive mode
// (no likelihood term). Xu supplies the initial inducing inputs; its row
// count M is fixed for the model's lifetime and should be far smaller than
// the training set. lik is required whenever y is present. The posterior
// mean initializes to zero and the posterior scale to identity.
func New(store *params.Store, X, y *mat.Dense, kern kernel.Kernel, Xu *mat.Dense, lik likelihood.Likelihood, cfg Config) (*SVGP, error) {
	if X == nil || Xu == nil {
		return nil, fmt.Errorf("gp: training inputs and inducing inputs are required")
	}
	n, d := X.Dims()
	m, du := Xu.Dims()
	if du != d {
		return nil, &ShapeError{Op: "new", Want: d, Got: du}
	}
	if y != nil {
		if _, yc := y.Dims(); yc != n {
			return nil, fmt.Errorf("gp: outputs have %d columns, want one per training input (%d)", yCols(y), n)
		}
		if lik == nil {
			return nil, fmt.Errorf("gp: a likelihood is required when training outputs are present")
		}
	}

	latent := 1
	if len(cfg.LatentShape) > 0 {
		for _, s := range cfg.LatentShape {
			if s <= 0 {
				return nil, fmt.Errorf("gp: latent shape %v has a non-positive entry", cfg.LatentShape)
			}
			latent *= s
		}
	} else if y != nil {
		if yr, _ := y.Dims(); yr > 1 {
			latent = yr
		}
	}
	if y != nil {
		if yr, _ := y.Dims(); yr != latent {
			return nil, fmt.Errorf("gp: outputs have %d rows but the latent shape implies %d processes", yr, latent)
		}
	}

	jitter := cfg.Jitter
	if jitter == 0 {
		jitter = DefaultJitter
	}
	if jitter < 0 {
		return nil, fmt.Errorf("gp: jitter must be positive, got %v", jitter)
	}
	name := cfg.Name
	if name == "" {
		name = "svgp-" + uuid.NewString()[:8]
	}

	g := &SVGP{
		name:   name,
		store:  store,
		kern:   kern,
		lik:    lik,
		X:      X,
		y:      y,
		latent: latent,
		m:      m,
		d:      d,
		jitter: jitter,
	}

	xu := make([]float64, m*d)
	for i := 0; i < m; i++ {
		copy(xu[i*d:(i+1)*d], Xu.RawRowView(i))
	}
	if _, err := store.Register(g.paramXu(), xu, []int{m, d}, nil); err != nil {
		return nil, err
	}
	if _, err := store.Register(g.paramULoc(), make([]float64, latent*m), []int{latent, m}, nil); err != nil {
		return nil, err
	}
	scale := make([]float64, latent*m*m)
	for l := 0; l < latent; l++ {
		for i := 0; i < m; i++ {
			scale[l*m*m+i*m+i] = 1
		}
	}
	if _, err := store.Register(g.paramUScale(), scale, []int{latent, m, m}, params.LowerCholesky{}); err != nil {
		return nil, err
	}

	return g, nil
}

// Name returns the instance name prefixing this model's parameters and
// sample sites.
func (g *SVGP) Name() string { return g.name }

// NumInducing returns the inducing point count M.
func (g *SVGP) NumInducing() int { return g.m }

// Jitter returns the fixed diagonal stabilizer.
func (g *SVGP) Jitter() float64 { return g.jitter }

func (g *SVGP) paramXu() string     { return g.name + ".Xu" }
func (g *SVGP) paramULoc() string   { return g.name + ".u_loc" }
func (g *SVGP) paramUScale() string { return g.name + ".u_scale_tril" }

// SiteU returns the name of the inducing-value sample site. The name is
// stable across invocations; the inference driver correlates model and
// guide sites by it.
func (g *SVGP) SiteU() string { return g.name + ".u" }

// liveXu returns a matrix view over the live inducing-input parameter.
func (g *SVGP) liveXu() *mat.Dense {
	p, _ := g.store.Get(g.paramXu())
	return mat.NewDense(g.m, g.d, p.Value())
}

func (g *SVGP) liveULoc() *mat.Dense {
	p, _ := g.store.Get(g.paramULoc())
	return mat.NewDense(g.latent, g.m, p.Value())
}

func (g *SVGP) liveUScale() []*mat.TriDense {
	p, _ := g.store.Get(g.paramUScale())
	v := p.Value()
	out := make([]*mat.TriDense, g.latent)
	for l := 0; l < g.latent; l++ {
		out[l] = mat.NewTriDense(g.m, mat.Lower, v[l*g.m*g.m:(l+1)*g.m*g.m])
	}
	return out
}

// Model is the generative program. It reads the live parameters, samples
// the inducing values u from their zero-mean GP prior at site SiteU, and
// scores the training outputs through the likelihood using the latent
// conditional at the training inputs. With no training outputs it returns
// the latent predictive mean and variance directly (prior-predictive mode).
//
// The conditional deliberately reads the variational posterior parameters
// (u_loc, u_scale_tril) rather than the freshly sampled u: the sample only
// contributes its prior score, which is the collapsed evidence bound of
// Hensman et al. Conditioning on the sample instead would optimize a
// different, looser objective, so do not "fix" this.
func (g *SVGP) Model(tr *prob.Trace) (*Prediction, error) {
	Xu := g.liveXu()
	uLoc := g.liveULoc()
	uScale := g.liveUScale()

	Luu, err := CholeskyKuu(Xu, g.kern, g.jitter)
	if err != nil {
		return nil, err
	}

	priorScale := make([]*mat.TriDense, g.latent)
	for l := range priorScale {
		priorScale[l] = Luu
	}
	prior, err := prob.NewMultivariateNormal(mat.NewDense(g.latent, g.m, nil), priorScale)
	if err != nil {
		return nil, err
	}
	if _, err := tr.Sample(g.SiteU(), prior); err != nil {
		return nil, err
	}

	pred, err := Conditional(g.X, Xu, g.kern, uLoc, uScale, Luu, false, g.jitter)
	if err != nil {
		return nil, err
	}
	if g.y == nil {
		return pred, nil
	}
	if err := g.lik.Score(tr, g.name, pred.Mean, pred.Variance, g.y); err != nil {
		return nil, err
	}
	return pred, nil
}

// Guide is the variational program: it declares the same SiteU sample site
// as Model, but under the learned posterior q(u) = N(u_loc, S S^T).
func (g *SVGP) Guide(tr *prob.Trace) error {
	_, _, uLoc, uScale := g.GuideParams()
	q, err := prob.NewMultivariateNormal(uLoc, uScale)
	if err != nil {
		return err
	}
	_, err = tr.Sample(g.SiteU(), q)
	return err
}

// GuideParams returns the guide's current learned objects (inducing
// inputs, kernel, posterior mean and posterior scale) without declaring a
// sample site. Prediction-time code uses this to share the guide's
// parameter reads without an extra random draw or a duplicate site.
func (g *SVGP) GuideParams() (Xu *mat.Dense, k kernel.Kernel, uLoc *mat.Dense, uScale []*mat.TriDense) {
	return g.liveXu(), g.kern, g.liveULoc(), g.liveUScale()
}

// Forward computes the posterior predictive distribution of the latent
// function at Xnew, using the current learned parameters. fullCov selects a
// full covariance matrix per latent process instead of the diagonal
// variance. Forward mutates nothing and registers no sample sites.
func (g *SVGP) Forward(Xnew *mat.Dense, fullCov bool) (*Prediction, error) {
	if Xnew == nil {
		return nil, fmt.Errorf("gp: forward: nil query inputs")
	}
	if _, d := Xnew.Dims(); d != g.d {
		return nil, &ShapeError{Op: "forward", Want: g.d, Got: d}
	}

	Xu, k, uLoc, uScale := g.GuideParams()
	return Conditional(Xnew, Xu, k, uLoc, uScale, nil, fullCov, g.jitter)
}

// Points1D builds an n x 1 input matrix from scalar inputs.
func Points1D(xs []float64) *mat.Dense {
	out := mat.NewDense(len(xs), 1, nil)
	for i, x := range xs {
		out.Set(i, 0, x)
	}
	return out
}

// Outputs1D builds a 1 x n output matrix from scalar outputs.
func Outputs1D(ys []float64) *mat.Dense {
	v := make([]float64, len(ys))
	copy(v, ys)
	return mat.NewDense(1, len(ys), v)
}

func yCols(y *mat.Dense) int {
	_, c := y.Dims()
	return c
}
