package likelihood

import (
	"fmt"
	"math"

	"github.com/adalundhe/sparsegp/core/params"
	"github.com/adalundhe/sparsegp/core/prob"
	"gonum.org/v1/gonum/mat"
)

// Gaussian is a homoscedastic normal observation model:
//
//	y_i ~ Normal(fLoc_i, sqrt(fVar_i + variance))
//
// The latent predictive variance is folded into the observation scale, so
// scoring integrates over the latent uncertainty at each point. The noise
// variance is a learned, positivity-constrained parameter in the shared
// store.
type Gaussian struct {
	store *params.Store
	name  string
}

// NewGaussian registers the noise-variance parameter under
// "<name>.variance" and returns the likelihood. variance is the initial
// noise level and must be positive.
func NewGaussian(store *params.Store, name string, variance float64) (*Gaussian, error) {
	if name == "" {
		return nil, fmt.Errorf("likelihood: empty name")
	}
	if _, err := store.Register(name+".variance", []float64{variance}, []int{1}, params.Positive{}); err != nil {
		return nil, err
	}
	return &Gaussian{store: store, name: name}, nil
}

// Variance returns the current noise variance.
func (g *Gaussian) Variance() float64 {
	p, _ := g.store.Get(g.name + ".variance")
	return p.Value()[0]
}

// Score implements Likelihood, registering one observation site "<site>.y"
// covering every latent row and training point.
func (g *Gaussian) Score(tr *prob.Trace, site string, fLoc, fVar, y *mat.Dense) error {
	lr, lc := fLoc.Dims()
	if vr, vc := fVar.Dims(); vr != lr || vc != lc {
		return fmt.Errorf("likelihood: mean is %dx%d but variance is %dx%d", lr, lc, vr, vc)
	}
	if yr, yc := y.Dims(); yr != lr || yc != lc {
		return fmt.Errorf("likelihood: mean is %dx%d but outputs are %dx%d", lr, lc, yr, yc)
	}

	noise := g.Variance()
	n := lr * lc
	loc := make([]float64, 0, n)
	scale := make([]float64, 0, n)
	obs := make([]float64, 0, n)
	for i := 0; i < lr; i++ {
		locRow := fLoc.RawRowView(i)
		varRow := fVar.RawRowView(i)
		yRow := y.RawRowView(i)
		for j := 0; j < lc; j++ {
			loc = append(loc, locRow[j])
			scale = append(scale, math.Sqrt(varRow[j]+noise))
			obs = append(obs, yRow[j])
		}
	}

	_, err := tr.Observe(site+".y", prob.NewNormal(loc, scale), obs)
	return err
}
