package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fieldtrack/internal/contracts"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent: connect the dispatch channel and serve job actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			// context cancelled on SIGINT/SIGTERM for graceful shutdown
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := buildAgent(ctx, flags)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			a.channel.Subscribe(contracts.EventTrackingError, func(data json.RawMessage) {
				var te contracts.TrackingError
				if err := json.Unmarshal(data, &te); err != nil {
					return
				}
				a.logger.Error(ctx, "tracking_error_received", "Server reported a tracking error", nil, map[string]any{
					"message": te.Message,
				})
			})
			a.channel.Subscribe(contracts.EventLocationAcknowledged, func(data json.RawMessage) {
				a.logger.Debug(ctx, "location_acknowledged", "Server acknowledged a location update", nil)
			})

			if err := a.channel.Connect(ctx, a.techID); err != nil {
				return err
			}

			// a fresh snapshot also rebinds any job left IN_PROGRESS by a
			// previous run
			if err := a.coord.Refresh(ctx); err != nil {
				a.logger.Error(ctx, "initial_refresh_failed", "Initial job refresh failed; continuing with cache", err, nil)
			}

			a.logger.Info(ctx, "agent_running", "Agent running; press Ctrl-C to stop", map[string]any{
				"active_job_id": a.coord.ActiveJobID(),
			})

			<-ctx.Done()
			return nil
		},
	}
}
