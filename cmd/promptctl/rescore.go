package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/promptgrade-api/internal/bootstrap"
)

func newRescoreCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "rescore",
		Short: "Finalize the latest pending submission of every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, load, func(ctx context.Context, c *bootstrap.Container) error {
				summary, err := c.Submissions.RescorePending(ctx)
				if err != nil {
					return err
				}
				if wantsJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), summary)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "processed %d, finalized %d, failed %d\n", summary.Processed, summary.Finalized, summary.Failed)
				return writeStandings(cmd.OutOrStdout(), summary.Standings)
			})
		},
	}
}
