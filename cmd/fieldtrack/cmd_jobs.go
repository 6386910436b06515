package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List assigned jobs (cached snapshot when dispatch is unreachable)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildAgent(ctx, flags)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			if profile, err := a.client.GetProfile(ctx, a.techID); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Technician: %s <%s>\n", profile.Name, profile.Email)
			}

			stale := false
			if err := a.coord.Refresh(ctx); err != nil {
				stale = true
			}

			jobs := a.coord.Jobs()
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs assigned.")
				return nil
			}

			if stale {
				fmt.Fprintln(cmd.OutOrStdout(), "(dispatch unreachable; showing cached snapshot)")
			}
			for _, j := range jobs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-12s %s\n", j.ID, j.Status, j.Title)
			}

			stats := a.coord.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d total: %d pending, %d active, %d completed\n",
				stats.Total, stats.Pending, stats.Active, stats.Completed)
			return nil
		},
	}
}
