package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/promptgrade-api/internal/bootstrap"
	"github.com/noah-isme/promptgrade-api/internal/dto"
)

func newLeaderboardCmd(load configLoader) *cobra.Command {
	var (
		final bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the quick or final standings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}
			return withContainer(cmd, load, func(ctx context.Context, c *bootstrap.Container) error {
				board := c.Leaderboards.Quick
				if final {
					board = c.Leaderboards.Final
				}
				entries, err := board(ctx, limit)
				if err != nil {
					return err
				}
				if wantsJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), entries)
				}
				return writeStandings(cmd.OutOrStdout(), entries)
			})
		},
	}

	cmd.Flags().BoolVar(&final, "final", false, "Show final scores instead of quick scores")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of rows. 0 uses the board default")
	return cmd
}

func writeStandings(out io.Writer, entries []dto.LeaderboardEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "no standings yet")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tNAME\tSCORE\tLAST SUBMISSION")
	for _, entry := range entries {
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%s\n", entry.Rank, entry.Name, entry.Score, entry.Timestamp)
	}
	return w.Flush()
}
