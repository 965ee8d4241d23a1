package main

import (
	"github.com/spf13/cobra"

	"github.com/skillswap/swapd/internal/config"
)

func reindexCmd() *cobra.Command {
	var uid string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from stored profiles",
		Long: "Re-embeds and re-upserts profile skill texts into the vector " +
			"index. Run after changing the embedding model or recovering an " +
			"empty index.",
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

			if uid != "" {
				if err := a.svc.Profiles.Reindex(cmd.Context(), uid); err != nil {
					return err
				}
				a.log.Info().Str("uid", uid).Msg("profile reindexed")
				return nil
			}

			n, err := a.svc.Profiles.ReindexAll(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info().Int("profiles", n).Msg("reindex finished")
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "reindex a single profile")
	return cmd
}
