// Package cmd provides the sparsegp CLI commands.
// This file implements the run configuration and dataset loading shared by
// the train and predict commands.
package cmd

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/adalundhe/sparsegp/core/gp"
	"github.com/adalundhe/sparsegp/core/kernel"
	"github.com/adalundhe/sparsegp/core/likelihood"
	"github.com/adalundhe/sparsegp/core/params"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// RunDefaultInducing is the default inducing point count.
	RunDefaultInducing = 16

	// RunDefaultSteps is the default optimization step count.
	RunDefaultSteps = 1000

	// RunDefaultNoise is the default initial observation noise variance.
	RunDefaultNoise = 1.0

	// RunDefaultParamsOut is the default parameter snapshot path.
	RunDefaultParamsOut = "sparsegp-params.json"

	// RunDefaultOptimizerOut is the default optimizer checkpoint path.
	RunDefaultOptimizerOut = "sparsegp-optim.json"

	// ModelName prefixes every parameter of the CLI's model. Train and
	// predict must agree on it so snapshots restore by name.
	ModelName = "gp"
)

// =============================================================================
// Run Configuration
// =============================================================================

// KernelConfig selects and parameterizes the covariance function.
type KernelConfig struct {
	// Type is "rbf" or "matern52".
	Type string `yaml:"type"`

	// Variance is the kernel variance (prior marginal variance).
	Variance float64 `yaml:"variance"`

	// Lengthscale is the kernel lengthscale.
	Lengthscale float64 `yaml:"lengthscale"`
}

// OptimizerConfig selects the training optimizer.
type OptimizerConfig struct {
	// Method is "adam", "clipped_adam", "rmsprop" or "sgd".
	Method string `yaml:"method"`

	// LR is the learning rate. Zero takes the method default.
	LR float64 `yaml:"lr"`
}

// RunConfig is the YAML training configuration. Zero-valued fields take
// the documented defaults.
type RunConfig struct {
	// Data is the training CSV path: feature columns, target last.
	Data string `yaml:"data"`

	// Inducing is the inducing point count M.
	Inducing int `yaml:"inducing"`

	// Steps is the optimization step count.
	Steps int `yaml:"steps"`

	// Seed seeds the training randomness.
	Seed int64 `yaml:"seed"`

	// Jitter stabilizes Cholesky factorizations. Zero takes the model
	// default.
	Jitter float64 `yaml:"jitter"`

	// Noise is the initial observation noise variance.
	Noise float64 `yaml:"noise"`

	Kernel    KernelConfig    `yaml:"kernel"`
	Optimizer OptimizerConfig `yaml:"optimizer"`

	// ParamsOut is where the learned parameter snapshot is written.
	ParamsOut string `yaml:"params_out"`

	// OptimizerOut is where the optimizer checkpoint is written.
	OptimizerOut string `yaml:"optimizer_out"`
}

// defaultRunConfig returns the configuration used when no file and no flags
// override it.
func defaultRunConfig() RunConfig {
	return RunConfig{
		Inducing:     RunDefaultInducing,
		Steps:        RunDefaultSteps,
		Noise:        RunDefaultNoise,
		Kernel:       KernelConfig{Type: "rbf", Variance: 1, Lengthscale: 1},
		Optimizer:    OptimizerConfig{Method: "adam"},
		ParamsOut:    RunDefaultParamsOut,
		OptimizerOut: RunDefaultOptimizerOut,
	}
}

// loadRunConfig reads a YAML configuration over the defaults. An empty path
// returns the defaults unchanged.
func loadRunConfig(path string) (RunConfig, error) {
	cfg := defaultRunConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// buildKernel constructs the configured covariance function.
func (c *RunConfig) buildKernel() (kernel.Kernel, error) {
	switch c.Kernel.Type {
	case "", "rbf":
		return kernel.NewRBF(c.Kernel.Variance, c.Kernel.Lengthscale), nil
	case "matern52":
		return kernel.NewMatern52(c.Kernel.Variance, c.Kernel.Lengthscale), nil
	default:
		return nil, fmt.Errorf("unknown kernel type %q (want rbf or matern52)", c.Kernel.Type)
	}
}

// =============================================================================
// Dataset Loading
// =============================================================================

// loadDataCSV reads a training dataset: one row per example, feature
// columns first and the target in the last column. A non-numeric first row
// is treated as a header and skipped.
func loadDataCSV(path string) (X, y *mat.Dense, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open data: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read data %s: %w", path, err)
	}
	if len(records) > 0 {
		if _, convErr := strconv.ParseFloat(records[0][0], 64); convErr != nil {
			records = records[1:]
		}
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("data %s has no rows", path)
	}
	cols := len(records[0])
	if cols < 2 {
		return nil, nil, fmt.Errorf("data %s needs at least one feature column and a target column", path)
	}

	n, d := len(records), cols-1
	X = mat.NewDense(n, d, nil)
	targets := make([]float64, n)
	for i, rec := range records {
		if len(rec) != cols {
			return nil, nil, fmt.Errorf("data %s row %d has %d columns, want %d", path, i+1, len(rec), cols)
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("data %s row %d column %d: %w", path, i+1, j+1, err)
			}
			if j < d {
				X.Set(i, j, v)
			} else {
				targets[i] = v
			}
		}
	}
	return X, mat.NewDense(1, n, targets), nil
}

// loadPointsCSV reads query inputs: one row per point, every column a
// feature. A non-numeric first row is treated as a header.
func loadPointsCSV(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open points: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read points %s: %w", path, err)
	}
	if len(records) > 0 {
		if _, convErr := strconv.ParseFloat(records[0][0], 64); convErr != nil {
			records = records[1:]
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("points %s has no rows", path)
	}

	n, d := len(records), len(records[0])
	out := mat.NewDense(n, d, nil)
	for i, rec := range records {
		if len(rec) != d {
			return nil, fmt.Errorf("points %s row %d has %d columns, want %d", path, i+1, len(rec), d)
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("points %s row %d column %d: %w", path, i+1, j+1, err)
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// buildModel constructs the store, likelihood and model for a dataset. The
// inducing locations initialize to a random subset of the training inputs;
// restoring a parameter snapshot overwrites them.
func buildModel(cfg RunConfig, X, y *mat.Dense, rng *rand.Rand) (*params.Store, *gp.SVGP, error) {
	kern, err := cfg.buildKernel()
	if err != nil {
		return nil, nil, err
	}
	store := params.NewStore()
	lik, err := likelihood.NewGaussian(store, ModelName+".lik", cfg.Noise)
	if err != nil {
		return nil, nil, err
	}
	g, err := gp.New(store, X, y, kern, selectInducing(X, cfg.Inducing, rng), lik,
		gp.Config{Name: ModelName, Jitter: cfg.Jitter})
	if err != nil {
		return nil, nil, err
	}
	return store, g, nil
}

// selectInducing draws m distinct training inputs as the initial inducing
// locations. When the dataset has fewer than m rows, every row is used.
func selectInducing(X *mat.Dense, m int, rng *rand.Rand) *mat.Dense {
	n, d := X.Dims()
	if m > n {
		m = n
	}
	perm := rng.Perm(n)[:m]
	out := mat.NewDense(m, d, nil)
	for i, src := range perm {
		for j := 0; j < d; j++ {
			out.Set(i, j, X.At(src, j))
		}
	}
	return out
}
