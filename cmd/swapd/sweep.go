package main

import (
	"github.com/spf13/cobra"

	"github.com/skillswap/swapd/internal/config"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the auto-complete sweep once and exit",
		Long: "Finalizes every pending completion whose response window has " +
			"lapsed, exactly as the scheduled job would. Safe to run while a " +
			"server is up; the sweep is idempotent.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.svc.Completion.SweepAutoComplete(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info().Int("finalized", n).Msg("sweep finished")
			return nil
		},
	}
}
