package cli

import (
	"fmt"

	"pact-oracle/program"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

// NewDeriveCommand prints program-derived addresses. It needs no ledger or
// database access.
func NewDeriveCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print program-derived account addresses",
	}

	withProgram := func(run func(p *program.Program, args []string) (solana.PublicKey, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			p, err := program.Parse(opts.cfg.Ledger.ProgramID)
			if err != nil {
				return err
			}
			addr, err := run(p, args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), addr.String())
			return err
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pact <name> <creator>",
		Short: "Challenge pact address",
		Args:  cobra.ExactArgs(2),
		RunE: withProgram(func(p *program.Program, args []string) (solana.PublicKey, error) {
			creator, err := solana.PublicKeyFromBase58(args[1])
			if err != nil {
				return solana.PublicKey{}, fmt.Errorf("creator: %w", err)
			}
			return p.PactAddress(args[0], creator)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "vault <pact>",
		Short: "Pact vault address",
		Args:  cobra.ExactArgs(1),
		RunE: withProgram(func(p *program.Program, args []string) (solana.PublicKey, error) {
			pact, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return solana.PublicKey{}, fmt.Errorf("pact: %w", err)
			}
			return p.PactVaultAddress(pact)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "profile <player>",
		Short: "Player profile address",
		Args:  cobra.ExactArgs(1),
		RunE: withProgram(func(p *program.Program, args []string) (solana.PublicKey, error) {
			player, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return solana.PublicKey{}, fmt.Errorf("player: %w", err)
			}
			return p.ProfileAddress(player)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "goal <player> <pact>",
		Short: "Player goal record address",
		Args:  cobra.ExactArgs(2),
		RunE: withProgram(func(p *program.Program, args []string) (solana.PublicKey, error) {
			player, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return solana.PublicKey{}, fmt.Errorf("player: %w", err)
			}
			pact, err := solana.PublicKeyFromBase58(args[1])
			if err != nil {
				return solana.PublicKey{}, fmt.Errorf("pact: %w", err)
			}
			return p.PlayerGoalAddress(player, pact)
		}),
	})
	return cmd
}
