package main

import (
	"context"

	"github.com/aretw0/strata/internal/cli"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/spf13/cobra"
)

var depsCmd = &cobra.Command{
	Use:   "deps KIND NAME",
	Short: "List the rules a rule depends on",
	Long:  `Lists every rule below the named rule. Primitives reached through a semantic rule name it in the VIA column.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := domain.ParseKind(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.Dependencies(ctx, app, kind, args[1], output(cmd))
		})
	},
}

func init() {
	rootCmd.AddCommand(depsCmd)
}
