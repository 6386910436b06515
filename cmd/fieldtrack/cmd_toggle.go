package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newToggleCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle {on|off}",
		Short: "Enable or disable standalone location sharing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("expected 'on' or 'off', got %q", args[0])
			}

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
			if err := a.coord.ToggleStandalone(ctx, enabled, report); err != nil {
				return err
			}

			if enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Location sharing is on.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Location sharing is off.")
			}
			return nil
		},
	}
}
