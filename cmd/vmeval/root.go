package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptvm/internal/bundle"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/logging"
)

type rootOptions struct {
	bundleDir string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "vmeval",
		Short: "Evaluate scripts in a resource-bounded sandbox",
		Long: `vmeval runs a script inside a fresh sandbox context and prints its
result as JSON.

Input values are read from a JSON, YAML or TOML file and bound as globals.
Dependency bundles are named *.js files composed into the environment that
every evaluation starts from.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.bundleDir, "bundles", "", "Directory of *.js dependency bundles")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newEvalCmd(opts), newBundlesCmd(opts))
	return cmd
}

func (o *rootOptions) logger() *zap.Logger {
	logger, err := logging.New(logging.CLIConfig(o.logLevel))
	if err != nil {
		return zap.NewNop()
	}
	return logger.Logger
}

func (o *rootOptions) registry(logger *zap.Logger) (*bundle.Registry, error) {
	reg := bundle.NewRegistry(logger)
	if o.bundleDir != "" {
		if _, err := reg.LoadDir(o.bundleDir); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
