// Package likelihood provides observation models that score training
// outputs against a latent Gaussian process.
//
// A likelihood is consumed as a black box: given the latent predictive mean
// and variance at the training inputs it registers its own observation
// sites on the trace. Likelihood parameters live in the shared parameter
// store so the inference driver optimizes them alongside the model's.
package likelihood

import (
	"github.com/adalundhe/sparsegp/core/prob"
	"gonum.org/v1/gonum/mat"
)

// Likelihood scores observed outputs given the latent function's predictive
// mean and variance. fLoc, fVar and y are laid out one latent process per
// row with one column per training point. site is the owning model's name
// prefix; implementations derive their observation-site names from it.
type Likelihood interface {
	Score(tr *prob.Trace, site string, fLoc, fVar, y *mat.Dense) error
}
