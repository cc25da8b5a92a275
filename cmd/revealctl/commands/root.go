// Package commands implements the revealctl admin CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	app "github.com/okian/blindbox/internal/app"
	"github.com/okian/blindbox/internal/config"
	"github.com/okian/blindbox/pkg/logger"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the revealctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "revealctl",
		Short: "revealctl - admin tooling for the blindbox reveal service",
		Long: `revealctl operates directly on the reveal service's record store.

It reads the same configuration as the server (defaults, then the YAML file
named by --config or BLINDBOX_CONFIG, then BLINDBOX_* env vars). Use a
persistent backend (sqlite, postgres or redis); the memory backend forgets
everything when the command exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (overrides BLINDBOX_CONFIG)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log allocation decisions to stderr")

	root.AddCommand(
		newRevealCmd(opts),
		newSeedCmd(opts),
		newPoolsCmd(opts),
	)
	return root
}

// Execute runs the CLI against os.Args.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		printError(root.ErrOrStderr(), err)
	}
	return err
}

// loadConfig applies --config before loading.
func (o *rootOptions) loadConfig(ctx context.Context) (*config.Config, error) {
	if o.configPath != "" {
		if err := os.Setenv(config.FileEnv, o.configPath); err != nil {
			return nil, err
		}
	}
	return config.Load(ctx)
}

// runtime loads config and starts a service over the configured store.
func (o *rootOptions) runtime(ctx context.Context, out io.Writer) (*app.Runtime, *config.Config, error) {
	cfg, err := o.loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	warnMemory(out, cfg)
	rt, err := app.Build(ctx, cfg, logger.Get().Named("revealctl"))
	if err != nil {
		return nil, nil, err
	}
	return rt, cfg, nil
}

func warnMemory(out io.Writer, cfg *config.Config) {
	if cfg.StoreBackend == "" || cfg.StoreBackend == "memory" {
		yellow.Fprintf(out, "warning: store_backend is memory; changes are lost on exit\n")
	}
}

func printError(w io.Writer, err error) {
	red.Fprintf(w, "error: ")
	fmt.Fprintln(w, err)
}
