package main

import (
	"github.com/spf13/cobra"
)

// rootFlags hold the persistent CLI options shared by every subcommand.
type rootFlags struct {
	configPath string
	token      string
	email      string
	password   string
	simLat     float64
	simLng     float64
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "fieldtrack",
		Short:         "Field-technician location sync agent",
		Long:          "fieldtrack keeps a technician's position synchronized with the dispatch service while jobs are worked.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "fieldtrack.yaml", "path to the config file")
	root.PersistentFlags().StringVar(&flags.token, "token", "", "bearer token (skips login)")
	root.PersistentFlags().StringVar(&flags.email, "email", "", "technician email for login")
	root.PersistentFlags().StringVar(&flags.password, "password", "", "technician password for login")
	root.PersistentFlags().Float64Var(&flags.simLat, "lat", 12.9716, "simulated device start latitude")
	root.PersistentFlags().Float64Var(&flags.simLng, "lng", 77.5946, "simulated device start longitude")

	root.AddCommand(
		newRunCmd(flags),
		newJobsCmd(flags),
		newJobCmd(flags),
		newToggleCmd(flags),
		newUpdateCmd(flags),
	)
	return root
}
