package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newJobCmd(flags *rootFlags) *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Accept, start, or complete an assigned job",
	}
	job.AddCommand(
		newJobAcceptCmd(flags),
		newJobStartCmd(flags),
		newJobCompleteCmd(flags),
	)
	return job
}

func newJobAcceptCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "accept <job-id>",
		Short: "Accept an assigned job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildAgent(ctx, flags)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			updated, err := a.coord.Accept(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s.\n", updated.ID, updated.Status)
			return nil
		},
	}
}

func newJobStartCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <job-id>",
		Short: "Start a job and begin route tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildAgent(ctx, flags)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			// route events ride the dispatch channel, so it comes up first
			if err := a.channel.Connect(ctx, a.techID); err != nil {
				return err
			}

			report := func(msg string) {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			updated, err := a.coord.Start(ctx, args[0], report)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s; route tracking is on.\n", updated.ID, updated.Status)
			return nil
		},
	}
}

func newJobCompleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <job-id>",
		Short: "Complete a job and stop route tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildAgent(ctx, flags)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			if err := a.channel.Connect(ctx, a.techID); err != nil {
				return err
			}

			updated, err := a.coord.Complete(ctx, args[0])
			if updated.ID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s.\n", updated.ID, updated.Status)
			}
			if err != nil {
				return err
			}
			return nil
		},
	}
}
