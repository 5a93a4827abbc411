package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func NewDutyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "duty <verify|settle>",
		Short:     "Run one oracle duty now and print its report",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"verify", "settle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := build(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer c.close()

			var report interface{}
			switch args[0] {
			case "verify":
				if _, err := c.indexer.Reconcile(cmd.Context()); err != nil {
					opts.log.Warn().Err(err).Msg("pre-verification refresh failed, using last mirrored state")
				}
				report, err = c.oracle.RunVerification(cmd.Context())
			case "settle":
				report, err = c.oracle.RunSettlement(cmd.Context())
			default:
				return fmt.Errorf("unknown duty %q", args[0])
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
