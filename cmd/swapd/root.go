package main

import (
	"context"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

// Execute runs the swapd CLI.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:           "swapd",
		Short:         "swapd is the skill-exchange backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), sweepCmd(), reindexCmd(), versionCmd())
	return root.ExecuteContext(ctx)
}
