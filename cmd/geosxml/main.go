// Command geosxml preprocesses GEOS XML input decks: it follows <Included> files, substitutes
// <Parameters> and evaluates backtick expressions with physical units.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml"
)

const version = "0.1.0"

// app holds the global flags and the state built from them before a command runs
type app struct {
	verbose    bool
	configPath string

	logger *zap.Logger
	config *geosxml.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithApp(&app{})
}

// newRootCmdWithApp builds the command tree around a. A logger already set on a is kept.
func newRootCmdWithApp(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "geosxml",
		Short: "GEOS XML input deck preprocessor",
		Long: `geosxml flattens GEOS XML input decks.

It runs three passes over a deck, in order:
  1. <Included> files are spliced in place, recursively
  2. <Parameters> are collected and $name$ tokens substituted
  3. backtick expressions are evaluated, with units normalized to SI

The result is written as a single self-contained XML file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file (default: GEOSXML_* environment)")

	rootCmd.AddCommand(newPreprocessCmd(a))
	rootCmd.AddCommand(newCheckCmd(a))
	rootCmd.AddCommand(newEvalCmd(a))
	rootCmd.AddCommand(newUnitsCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// setup builds the logger and the configuration shared by every subcommand
func (a *app) setup() error {
	if a.logger == nil {
		config := zap.NewProductionConfig()
		if a.verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = logger
	}
	geosxml.SetLogger(geosxml.NewZapLogger(a.logger))

	if a.configPath != "" {
		config, err := geosxml.LoadConfigFile(a.configPath)
		if err != nil {
			return err
		}
		a.config = config
	} else {
		a.config = geosxml.ConfigFromEnvironment()
	}
	return nil
}

// expander creates an expander from the loaded configuration
func (a *app) expander() (*geosxml.Expander, error) {
	e, err := geosxml.NewWithConfig(a.config)
	if err != nil {
		return nil, err
	}
	e.SetLogger(geosxml.NewZapLogger(a.logger))
	return e, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "geosxml version %s\n", version)
		},
	}
}
