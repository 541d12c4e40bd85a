// Package commands implements the sinenet subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/born-ml/sinenet/internal/config"
)

const version = "v0.1.0-dev"

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sinenet",
		Short: "Speech embedding trainer with pitch-synchronous sine features",
		Long: `sinenet trains speaker classifiers on raw waveforms.

Layers are described in an experiment YAML file. Waveform windows are
projected onto sine and cosine bases at the harmonics of the window pitch
(Sinenet layers) before fully connected layers and a speaker head. Without
--config the built-in synthetic Sinenet V1 experiment is used.

Examples:
  # Show the default layer stack
  sinenet layers

  # Train with an experiment file, keeping checkpoints on disk
  sinenet train -f exp.yaml --store ./ckpt
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "", "experiment file (YAML)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newLayersCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command, canceling on interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadExperiment returns the experiment named by --config, or the default.
func loadExperiment() (*config.Experiment, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}

// newLogger writes text logs to w at info level, or debug with --verbose.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
