// Package cli wires the service together behind a cobra command tree.
package cli

import (
	"fmt"
	"os"

	"pact-oracle/config"
	"pact-oracle/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and what PersistentPreRunE builds from them.
type RootOptions struct {
	ConfigPath string

	cfg *config.Config
	log zerolog.Logger
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "pact-oracle",
		Short:         "Pact ledger mirror, transaction relay and oracle",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", os.Getenv("PACT_ORACLE_CONFIG"), "path to a TOML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewDutyCommand(opts))
	cmd.AddCommand(NewDeriveCommand(opts))
	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	envErr := godotenv.Load()
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.log = logger.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if envErr != nil {
		o.log.Debug().Msg("⚠️  No .env file found, reading environment variables directly")
	}
	return nil
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
