// Package cli implements the shopbot command line.
package cli

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shopbot/internal/config"
	"shopbot/internal/logger"
)

type globalFlags struct {
	configPath string
	verbose    bool
}

// cliContext is attached to the command context by the root pre-run hook.
type cliContext struct {
	cfg *config.Config
	log zerolog.Logger
}

type contextKey struct{}

var errNoContext = errors.New("cli context not initialized")

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "shopbot",
		Short:         "LINE bot that answers keywords with Amazon product carousels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if flags.verbose {
				cfg.Log.Level = "debug"
			}
			if err := logger.Init(cfg.Log); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, contextKey{}, &cliContext{cfg: cfg, log: logger.Get()}))
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return logger.Close()
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file path (yaml, json or toml)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newAuditCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func getCLIContext(cmd *cobra.Command) (*cliContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errNoContext
	}
	c, ok := ctx.Value(contextKey{}).(*cliContext)
	if !ok {
		return nil, errNoContext
	}
	return c, nil
}
