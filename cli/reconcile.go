package cli

import (
	"encoding/json"

	"pact-oracle/program"

	"github.com/spf13/cobra"
)

func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one indexer pass and print its report",
		Long: `Fetch program accounts from the ledger and merge them into the mirror.

Without --kind every account kind is refreshed, in dependency order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]program.AccountKind, 0, len(kinds))
			for _, k := range kinds {
				kind, err := program.ParseKind(k)
				if err != nil {
					return err
				}
				parsed = append(parsed, kind)
			}
			if len(parsed) == 0 {
				parsed = program.Kinds
			}

			c, err := build(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer c.close()

			report, err := c.indexer.ReconcileKinds(cmd.Context(), parsed...)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "account kinds to refresh (pacts, profiles, participants)")
	return cmd
}
