package main

import (
	"context"

	"github.com/aretw0/strata/internal/cli"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph TASK",
	Short: "Export the rule hierarchy of a task",
	Long: `Resolves the task and outputs a Mermaid diagram (graph TD) of its rules.
Rules that failed to render with the given variables are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("var")
		vars, err := cli.ParseVars(pairs, "")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.Graph(ctx, app, args[0], vars, output(cmd))
		})
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringArray("var", nil, "Template variable as key=value (repeatable)")
}
