package main

import (
	"context"

	"github.com/aretw0/strata/internal/cli"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var errInvalidCorpus = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the rule corpus for consistency",
	Long: `Runs every validation check: content, relations, template syntax, cycles,
orphaned records, duplicate names, version gaps and override JSON.
Exits with status 1 when any check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			valid, err := cli.Validate(ctx, app, output(cmd))
			if err != nil {
				return err
			}
			if !valid {
				return errInvalidCorpus
			}
			return nil
		})
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List rules of the same kind that share a name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			_, err := cli.Conflicts(ctx, app, output(cmd))
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(conflictsCmd)
}
