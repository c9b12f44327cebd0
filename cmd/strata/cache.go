package main

import (
	"context"

	"github.com/aretw0/strata/internal/cli"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the resolution cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache usage, optionally after generating some tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		warm, _ := cmd.Flags().GetStringSlice("warm")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.CacheStats(ctx, app, warm, output(cmd))
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheStatsCmd.Flags().StringSlice("warm", nil, "Tasks to generate before reporting")
}
