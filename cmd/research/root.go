package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Harshitk-cp/smartsearch/internal/buildconfig"
	"github.com/Harshitk-cp/smartsearch/internal/config"
	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/engine"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type researcher interface {
	Research(ctx context.Context, query string, opts engine.Options) (*domain.SynthesizedAnswer, error)
	Backends() []engine.BackendInfo
}

// newResearcher is replaced in tests.
var newResearcher = func(logger *zap.Logger) (researcher, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	return engine.Bootstrap(logger)
}

var rootFlags struct {
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "research",
	Short: "Answer questions with cited, cross-checked evidence",
	Long: "research routes a question to search backends, merges and verifies\n" +
		"what they return and prints a cited answer as JSON.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.Version = buildconfig.Version()
}

func cliLogger() *zap.Logger {
	if !rootFlags.verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
