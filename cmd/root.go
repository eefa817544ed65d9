package cmd

import (
	"github.com/spf13/cobra"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

var rootCmd = &cobra.Command{
	Use:   "sparsegp",
	Short: "Sparse variational Gaussian process regression",
	Long: `Sparsegp trains sparse variational Gaussian process models on tabular
data and serves predictions from the learned posterior.`,
}

func Execute() error {
	return rootCmd.Execute()
}
