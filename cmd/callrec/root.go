package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"callrec/internal/config"
	"callrec/internal/slogutil"
	"callrec/internal/version"
)

var (
	configPath   string
	verbosity    int
	quiet        bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "callrec",
	Short: "callrec - method call recommendations from usage models",
	Long: `callrec builds, indexes and queries probabilistic models of how the
methods of a type are used together, and proposes the methods most likely
to be called next on a receiver.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("callrec version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.callrec/config.json)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all logs")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "human", "Output format (json, human)")
}

// mustLoadConfig loads the config or exits.
func mustLoadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newLogger builds the command logger. Close the returned factory when done.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, *slogutil.LoggerFactory) {
	var cliLevel *slog.Level
	if quiet || cmd.Flags().Changed("verbose") {
		l := slogutil.LevelFromVerbosity(verbosity, quiet)
		cliLevel = &l
	}
	factory := slogutil.NewLoggerFactory(cfg.Logging, cliLevel)
	logger, err := factory.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: log file unavailable: %v\n", err)
		logger = slogutil.NewLogger(os.Stderr, factory.Level())
	}
	return logger, factory
}

func newContext() context.Context {
	return context.Background()
}

// printResponse writes resp in the selected format or exits.
func printResponse(resp interface{}) {
	output, err := FormatResponse(resp, OutputFormat(outputFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
