// Package cmd provides the sparsegp CLI commands.
// This file implements the train command.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/adalundhe/sparsegp/core/infer"
	"github.com/adalundhe/sparsegp/core/optim"
	"github.com/adalundhe/sparsegp/core/prob"
	"github.com/spf13/cobra"
)

// =============================================================================
// Train Command Flags
// =============================================================================

var (
	trainConfigPath   string
	trainData         string
	trainInducing     int
	trainSteps        int
	trainLR           float64
	trainMethod       string
	trainSeed         int64
	trainParamsOut    string
	trainOptimizerOut string
	trainResume       bool
	trainJSON         bool
	trainVerbose      bool
)

// =============================================================================
// Train Command
// =============================================================================

// trainCmd represents the train command.
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a sparse GP model on a CSV dataset",
	Long: `Train a sparse variational Gaussian process on a CSV dataset.

The dataset has one row per example: feature columns first, the regression
target in the last column. Training writes two artifacts: a parameter
snapshot holding the learned model and an optimizer checkpoint so a later
run can resume mid-schedule.

Examples:
  sparsegp train --data train.csv
  sparsegp train --config run.yaml
  sparsegp train --data train.csv --inducing 32 --steps 2000 --lr 0.01
  sparsegp train --config run.yaml --resume   # continue from checkpoints`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVarP(&trainConfigPath, "config", "c", "", "YAML run configuration")
	trainCmd.Flags().StringVarP(&trainData, "data", "d", "", "Training CSV (features..., target)")
	trainCmd.Flags().IntVarP(&trainInducing, "inducing", "m", RunDefaultInducing, "Inducing point count")
	trainCmd.Flags().IntVarP(&trainSteps, "steps", "s", RunDefaultSteps, "Optimization steps")
	trainCmd.Flags().Float64Var(&trainLR, "lr", 0, "Learning rate (0 = method default)")
	trainCmd.Flags().StringVar(&trainMethod, "optimizer", "", "Optimizer method (adam, clipped_adam, rmsprop, sgd)")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 0, "Random seed")
	trainCmd.Flags().StringVar(&trainParamsOut, "params-out", "", "Parameter snapshot output path")
	trainCmd.Flags().StringVar(&trainOptimizerOut, "optimizer-out", "", "Optimizer checkpoint output path")
	trainCmd.Flags().BoolVar(&trainResume, "resume", false, "Resume from existing snapshot and checkpoint")
	trainCmd.Flags().BoolVar(&trainJSON, "json", false, "Output as JSON")
	trainCmd.Flags().BoolVarP(&trainVerbose, "verbose", "v", false, "Verbose output")
}

// resolveTrainConfig merges the configuration file with explicitly set
// flags. Flags win.
func resolveTrainConfig(cmd *cobra.Command) (RunConfig, error) {
	cfg, err := loadRunConfig(trainConfigPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.Data = trainData
	}
	if flags.Changed("inducing") {
		cfg.Inducing = trainInducing
	}
	if flags.Changed("steps") {
		cfg.Steps = trainSteps
	}
	if flags.Changed("lr") {
		cfg.Optimizer.LR = trainLR
	}
	if flags.Changed("optimizer") {
		cfg.Optimizer.Method = trainMethod
	}
	if flags.Changed("seed") {
		cfg.Seed = trainSeed
	}
	if flags.Changed("params-out") {
		cfg.ParamsOut = trainParamsOut
	}
	if flags.Changed("optimizer-out") {
		cfg.OptimizerOut = trainOptimizerOut
	}
	if cfg.Data == "" {
		return cfg, fmt.Errorf("a training dataset is required (--data or config)")
	}
	return cfg, nil
}

// trainOutput is the JSON output for a training run.
type trainOutput struct {
	Steps        int     `json:"steps"`
	ELBO         float64 `json:"elbo"`
	Inducing     int     `json:"inducing"`
	Interrupted  bool    `json:"interrupted,omitempty"`
	ParamsOut    string  `json:"params_out"`
	OptimizerOut string  `json:"optimizer_out"`
}

// runTrain trains a model and writes its artifacts.
func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := resolveTrainConfig(cmd)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if trainVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	X, y, err := loadDataCSV(cfg.Data)
	if err != nil {
		return err
	}
	n, d := X.Dims()
	logger.Info("loaded dataset", "path", cfg.Data, "rows", n, "features", d)

	rng := rand.New(rand.NewSource(cfg.Seed))
	store, model, err := buildModel(cfg, X, y, rng)
	if err != nil {
		return err
	}

	opt, err := optim.New(optim.Method(cfg.Optimizer.Method), optim.Config{LR: cfg.Optimizer.LR})
	if err != nil {
		return err
	}
	if trainResume {
		if err := store.LoadFile(cfg.ParamsOut); err != nil {
			return fmt.Errorf("resume parameters: %w", err)
		}
		if err := opt.Load(cfg.OptimizerOut); err != nil {
			return fmt.Errorf("resume optimizer: %w", err)
		}
		logger.Info("resumed from checkpoints", "params", cfg.ParamsOut, "optimizer", cfg.OptimizerOut)
	}

	svi := infer.New(store, opt,
		func(tr *prob.Trace) error { _, err := model.Model(tr); return err },
		model.Guide,
		rng,
		infer.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	elbo, runErr := svi.Run(ctx, cfg.Steps)
	interrupted := errors.Is(runErr, context.Canceled)
	if runErr != nil && !interrupted {
		return runErr
	}
	if interrupted {
		logger.Warn("training interrupted, saving progress")
	}

	if err := store.SaveFile(cfg.ParamsOut); err != nil {
		return err
	}
	if err := opt.Save(cfg.OptimizerOut); err != nil {
		return err
	}

	out := trainOutput{
		Steps:        cfg.Steps,
		ELBO:         elbo,
		Inducing:     model.NumInducing(),
		Interrupted:  interrupted,
		ParamsOut:    cfg.ParamsOut,
		OptimizerOut: cfg.OptimizerOut,
	}
	if trainJSON {
		return outputJSONTrain(cmd.OutOrStdout(), out)
	}
	return outputRichTrain(cmd.OutOrStdout(), out)
}

// outputJSONTrain outputs the training summary as JSON.
func outputJSONTrain(w io.Writer, out trainOutput) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// outputRichTrain outputs the training summary with rich formatting.
func outputRichTrain(w io.Writer, out trainOutput) error {
	fmt.Fprintf(w, "%s%sTraining Complete%s\n", colorBold, colorCyan, colorReset)
	if out.Interrupted {
		fmt.Fprintf(w, "%sInterrupted before finishing; progress saved.%s\n", colorYellow, colorReset)
	}
	fmt.Fprintf(w, "%sSteps:%s      %d\n", colorGray, colorReset, out.Steps)
	fmt.Fprintf(w, "%sELBO:%s       %.4f\n", colorGray, colorReset, out.ELBO)
	fmt.Fprintf(w, "%sInducing:%s   %d\n", colorGray, colorReset, out.Inducing)
	fmt.Fprintf(w, "%sParameters:%s %s%s%s\n", colorGray, colorReset, colorGreen, out.ParamsOut, colorReset)
	fmt.Fprintf(w, "%sOptimizer:%s  %s%s%s\n", colorGray, colorReset, colorGreen, out.OptimizerOut, colorReset)
	return nil
}
