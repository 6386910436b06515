package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newUpdateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Send a single manual location update",
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

			report := func(msg string) {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			pos, err := a.coord.UpdateLocationNow(ctx, report)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent %.6f, %.6f (±%.0fm)\n", pos.Lat, pos.Lng, pos.AccuracyMeters)
			return nil
		},
	}
}
