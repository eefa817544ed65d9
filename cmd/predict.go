// Package cmd provides the sparsegp CLI commands.
// This file implements the predict command.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/adalundhe/sparsegp/core/gp"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// Predict Command Flags
// =============================================================================

var (
	predictConfigPath string
	predictData       string
	predictInducing   int
	predictParams     string
	predictAt         []float64
	predictAtFile     string
	predictFullCov    bool
	predictJSON       bool
)

// =============================================================================
// Predict Command
// =============================================================================

// predictCmd represents the predict command.
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict from a trained sparse GP model",
	Long: `Compute the posterior predictive distribution at query points.

Predict rebuilds the model from the same configuration and dataset used
for training, restores the learned parameter snapshot, and evaluates the
latent predictive mean and variance at the query points. Scalar query
points come from --at; multi-feature points from a CSV via --at-file.

Examples:
  sparsegp predict --config run.yaml --at 0.5,1.5
  sparsegp predict --data train.csv --params sparsegp-params.json --at 1.0
  sparsegp predict --config run.yaml --at-file query.csv --json
  sparsegp predict --config run.yaml --at 0.0,1.0 --full-cov --json`,
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVarP(&predictConfigPath, "config", "c", "", "YAML run configuration used for training")
	predictCmd.Flags().StringVarP(&predictData, "data", "d", "", "Training CSV the model was fit to")
	predictCmd.Flags().IntVarP(&predictInducing, "inducing", "m", RunDefaultInducing, "Inducing point count used for training")
	predictCmd.Flags().StringVarP(&predictParams, "params", "p", "", "Parameter snapshot (defaults to the config's params_out)")
	predictCmd.Flags().Float64SliceVar(&predictAt, "at", nil, "Scalar query points (single-feature models)")
	predictCmd.Flags().StringVar(&predictAtFile, "at-file", "", "CSV of query points, one row per point")
	predictCmd.Flags().BoolVar(&predictFullCov, "full-cov", false, "Report the full predictive covariance")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "Output as JSON")
}

// predictOutput is the JSON output for predictions.
type predictOutput struct {
	Mean       [][]float64   `json:"mean"`
	Variance   [][]float64   `json:"variance,omitempty"`
	Covariance [][][]float64 `json:"covariance,omitempty"`
}

// runPredict restores a trained model and evaluates it.
func runPredict(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(predictConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data") {
		cfg.Data = predictData
	}
	if cmd.Flags().Changed("inducing") {
		cfg.Inducing = predictInducing
	}
	if cfg.Data == "" {
		return fmt.Errorf("the training dataset is required to rebuild the model (--data or config)")
	}
	paramsPath := cfg.ParamsOut
	if cmd.Flags().Changed("params") {
		paramsPath = predictParams
	}

	X, y, err := loadDataCSV(cfg.Data)
	if err != nil {
		return err
	}
	store, model, err := buildModel(cfg, X, y, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return err
	}
	if err := store.LoadFile(paramsPath); err != nil {
		return err
	}

	Xnew, err := queryPoints(X)
	if err != nil {
		return err
	}
	pred, err := model.Forward(Xnew, predictFullCov)
	if err != nil {
		return err
	}

	out := collectPrediction(pred)
	if predictJSON {
		return outputJSONPrediction(cmd.OutOrStdout(), out)
	}
	return outputRichPrediction(cmd.OutOrStdout(), Xnew, out)
}

// queryPoints resolves the query inputs from the flags.
func queryPoints(X *mat.Dense) (*mat.Dense, error) {
	_, d := X.Dims()
	switch {
	case predictAtFile != "":
		pts, err := loadPointsCSV(predictAtFile)
		if err != nil {
			return nil, err
		}
		if _, pd := pts.Dims(); pd != d {
			return nil, fmt.Errorf("query points have %d features, model has %d", pd, d)
		}
		return pts, nil
	case len(predictAt) > 0:
		if d != 1 {
			return nil, fmt.Errorf("--at is for single-feature models; this model has %d features, use --at-file", d)
		}
		return gp.Points1D(predictAt), nil
	default:
		return nil, fmt.Errorf("query points are required (--at or --at-file)")
	}
}

// collectPrediction copies a prediction into the output shape.
func collectPrediction(pred *gp.Prediction) predictOutput {
	latent, n := pred.Mean.Dims()
	out := predictOutput{Mean: make([][]float64, latent)}
	for l := 0; l < latent; l++ {
		out.Mean[l] = append([]float64(nil), pred.Mean.RawRowView(l)...)
	}
	if pred.Variance != nil {
		out.Variance = make([][]float64, latent)
		for l := 0; l < latent; l++ {
			out.Variance[l] = append([]float64(nil), pred.Variance.RawRowView(l)...)
		}
	}
	if pred.Covariance != nil {
		out.Covariance = make([][][]float64, latent)
		for l, cov := range pred.Covariance {
			rows := make([][]float64, n)
			for i := 0; i < n; i++ {
				row := make([]float64, n)
				for j := 0; j < n; j++ {
					row[j] = cov.At(i, j)
				}
				rows[i] = row
			}
			out.Covariance[l] = rows
		}
	}
	return out
}

// outputJSONPrediction outputs predictions as JSON.
func outputJSONPrediction(w io.Writer, out predictOutput) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// outputRichPrediction outputs predictions with rich formatting.
func outputRichPrediction(w io.Writer, Xnew *mat.Dense, out predictOutput) error {
	fmt.Fprintf(w, "%s%sPosterior Predictive%s\n", colorBold, colorCyan, colorReset)
	n, d := Xnew.Dims()
	for l := range out.Mean {
		if len(out.Mean) > 1 {
			fmt.Fprintf(w, "%sLatent %d%s\n", colorGray, l, colorReset)
		}
		for i := 0; i < n; i++ {
			fmt.Fprintf(w, "%sx=%s%v  %smean=%s%.6f", colorGray, colorReset, formatPoint(Xnew, i, d),
				colorGray, colorReset, out.Mean[l][i])
			if out.Variance != nil {
				fmt.Fprintf(w, "  %sstddev=%s%.6f", colorGray, colorReset, math.Sqrt(out.Variance[l][i]))
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

func formatPoint(X *mat.Dense, i, d int) string {
	if d == 1 {
		return fmt.Sprintf("%g", X.At(i, 0))
	}
	return fmt.Sprintf("%v", X.RawRowView(i))
}
