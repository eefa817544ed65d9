package gp

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/adalundhe/sparsegp/core/kernel"
	"github.com/adalundhe/sparsegp/core/likelihood"
	"github.com/adalundhe/sparsegp/core/params"
	"github.com/adalundhe/sparsegp/core/prob"
	"gonum.org/v1/gonum/mat"
)

func newTestModel(t *testing.T) (*SVGP, *params.Store) {
	t.Helper()
	store := params.NewStore()
	lik, err := likelihood.NewGaussian(store, "m.lik", 0.1)
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(store,
		Points1D([]float64{0, 1, 2}),
		Outputs1D([]float64{0.1, 0.9, 2.1}),
		kernel.NewRBF(1.0, 1.0),
		Points1D([]float64{0.5, 1.5}),
		lik,
		Config{Name: "m"},
	)
	if err != nil {
		t.Fatal(err)
	}
	return g, store
}

func TestNew_RegistersParameters(t *testing.T) {
	g, store := newTestModel(t)

	tests := []struct {
		name  string
		shape []int
	}{
		{"m.Xu", []int{2, 1}},
		{"m.u_loc", []int{1, 2}},
		{"m.u_scale_tril", []int{1, 2, 2}},
		{"m.lik.variance", []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := store.Get(tt.name)
			if !ok {
				t.Fatalf("parameter %q not registered", tt.name)
			}
			if len(p.Shape()) != len(tt.shape) {
				t.Fatalf("shape = %v, want %v", p.Shape(), tt.shape)
			}
			for i := range tt.shape {
				if p.Shape()[i] != tt.shape[i] {
					t.Fatalf("shape = %v, want %v", p.Shape(), tt.shape)
				}
			}
		})
	}

	// Posterior scale initializes to identity, mean to zero.
	scale, _ := store.Get("m.u_scale_tril")
	want := []float64{1, 0, 0, 1}
	for i, v := range scale.Value() {
		if v != want[i] {
			t.Errorf("u_scale_tril[%d] = %v, want %v", i, v, want[i])
		}
	}
	loc, _ := store.Get("m.u_loc")
	for i, v := range loc.Value() {
		if v != 0 {
			t.Errorf("u_loc[%d] = %v, want 0", i, v)
		}
	}
	if g.NumInducing() != 2 {
		t.Errorf("NumInducing = %d, want 2", g.NumInducing())
	}
}

func TestNew_ShapeValidation(t *testing.T) {
	store := params.NewStore()
	lik, err := likelihood.NewGaussian(store, "v.lik", 0.1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = New(store,
		Points1D([]float64{0, 1}),
		nil,
		kernel.NewRBF(1, 1),
		mat.NewDense(2, 2, nil), // two features, training inputs have one
		nil,
		Config{Name: "v"},
	)
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want ShapeError", err)
	}

	_, err = New(store,
		Points1D([]float64{0, 1}),
		Outputs1D([]float64{1, 2, 3}), // three outputs for two inputs
		kernel.NewRBF(1, 1),
		Points1D([]float64{0.5}),
		lik,
		Config{Name: "v2"},
	)
	if err == nil {
		t.Fatal("mismatched output count accepted")
	}
}

func TestModel_RegistersPriorSampleAndObservation(t *testing.T) {
	g, _ := newTestModel(t)

	tr := prob.NewTrace(rand.New(rand.NewSource(3)))
	if _, err := g.Model(tr); err != nil {
		t.Fatal(err)
	}

	u, ok := tr.Site(g.SiteU())
	if !ok {
		t.Fatal("model did not register the inducing-value site")
	}
	if u.Observed {
		t.Error("inducing-value site marked observed")
	}
	if len(u.Value) != 2 {
		t.Errorf("inducing sample length = %d, want 2", len(u.Value))
	}

	y, ok := tr.Site("m.y")
	if !ok {
		t.Fatal("model did not register the observation site")
	}
	if !y.Observed {
		t.Error("observation site not marked observed")
	}
}

func TestModel_PriorPredictiveMode(t *testing.T) {
	store := params.NewStore()
	g, err := New(store,
		Points1D([]float64{0, 1, 2}),
		nil, // no outputs
		kernel.NewRBF(1.0, 1.0),
		Points1D([]float64{0.5, 1.5}),
		nil,
		Config{Name: "pp"},
	)
	if err != nil {
		t.Fatal(err)
	}

	tr := prob.NewTrace(rand.New(rand.NewSource(1)))
	pred, err := g.Model(tr)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := pred.Mean.Dims(); r != 1 || c != 3 {
		t.Errorf("mean dims = (%d, %d), want (1, 3)", r, c)
	}
	if _, ok := tr.Site("pp.y"); ok {
		t.Error("prior-predictive mode registered an observation site")
	}
}

func TestGuide_UsesLearnedPosterior(t *testing.T) {
	g, store := newTestModel(t)
	if err := store.Set("m.u_loc", []float64{5, -5}); err != nil {
		t.Fatal(err)
	}
	// Shrink the posterior so draws stay near the mean.
	if err := store.Set("m.u_scale_tril", []float64{1e-9, 0, 0, 1e-9}); err != nil {
		t.Fatal(err)
	}

	tr := prob.NewTrace(rand.New(rand.NewSource(5)))
	if err := g.Guide(tr); err != nil {
		t.Fatal(err)
	}
	u, ok := tr.Site(g.SiteU())
	if !ok {
		t.Fatal("guide did not register the inducing-value site")
	}
	if u.Value[0] < 4.9 || u.Value[0] > 5.1 || u.Value[1] > -4.9 || u.Value[1] < -5.1 {
		t.Errorf("guide sample = %v, want near [5 -5]", u.Value)
	}
}

func TestGuideParams_NoSampleSite(t *testing.T) {
	g, _ := newTestModel(t)
	Xu, k, uLoc, uScale := g.GuideParams()
	if Xu == nil || k == nil || uLoc == nil || uScale == nil {
		t.Fatal("GuideParams returned nil objects")
	}
	// Live views: a store write shows up in a previously obtained view.
	if uLoc.At(0, 0) != 0 {
		t.Fatalf("fresh posterior mean = %v, want 0", uLoc.At(0, 0))
	}
}

func TestForward_ShapesAndShapeError(t *testing.T) {
	g, _ := newTestModel(t)

	pred, err := g.Forward(Points1D([]float64{0.25, 1.75}), false)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := pred.Mean.Dims(); r != 1 || c != 2 {
		t.Errorf("mean dims = (%d, %d), want (1, 2)", r, c)
	}

	full, err := g.Forward(Points1D([]float64{0.25, 1.75}), true)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := full.Covariance[0].Dims(); r != 2 || c != 2 {
		t.Errorf("covariance dims = (%d, %d), want (2, 2)", r, c)
	}

	_, err = g.Forward(mat.NewDense(1, 3, nil), false)
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want ShapeError", err)
	}
}

func TestForward_Deterministic(t *testing.T) {
	g, _ := newTestModel(t)
	X := Points1D([]float64{0.1, 0.9, 1.4})

	a, err := g.Forward(X, false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Forward(X, false)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.MeanVec() {
		if a.MeanVec()[i] != b.MeanVec()[i] || a.VarianceVec()[i] != b.VarianceVec()[i] {
			t.Fatalf("repeated Forward calls disagree at %d", i)
		}
	}
}

func TestForward_SeesLiveParameterWrites(t *testing.T) {
	g, store := newTestModel(t)
	X := Points1D([]float64{1.0})

	before, err := g.Forward(X, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set("m.u_loc", []float64{2, 2}); err != nil {
		t.Fatal(err)
	}
	after, err := g.Forward(X, false)
	if err != nil {
		t.Fatal(err)
	}
	if before.MeanVec()[0] == after.MeanVec()[0] {
		t.Error("Forward did not observe a live parameter update")
	}
}

func TestNew_UniqueDefaultNames(t *testing.T) {
	store := params.NewStore()
	X := Points1D([]float64{0, 1})
	Xu := Points1D([]float64{0.5})

	a, err := New(store, X, nil, kernel.NewRBF(1, 1), Xu, nil, Config{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(store, X, nil, kernel.NewRBF(1, 1), Xu, nil, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() == b.Name() {
		t.Errorf("two default-named models share name %q", a.Name())
	}
	if a.SiteU() == b.SiteU() {
		t.Error("two models share a sample-site name")
	}
}

func TestNew_MultiLatentFromOutputs(t *testing.T) {
	store := params.NewStore()
	lik, err := likelihood.NewGaussian(store, "ml.lik", 0.1)
	if err != nil {
		t.Fatal(err)
	}
	y := mat.NewDense(3, 2, []float64{0, 1, 1, 0, 0.5, 0.5}) // three latent rows
	g, err := New(store,
		Points1D([]float64{0, 1}),
		y,
		kernel.NewRBF(1, 1),
		Points1D([]float64{0.5}),
		lik,
		Config{Name: "ml"},
	)
	if err != nil {
		t.Fatal(err)
	}

	pred, err := g.Forward(Points1D([]float64{0.3}), false)
	if err != nil {
		t.Fatal(err)
	}
	if r, _ := pred.Mean.Dims(); r != 3 {
		t.Errorf("latent rows = %d, want 3", r)
	}
}
