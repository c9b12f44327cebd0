package main

import (
	"context"

	"github.com/aretw0/strata/internal/cli"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate TASK",
	Short: "Compose the prompt of a task rule",
	Long: `Resolves the task through its semantic and primitive rules, renders it
with the given variables and frames it for the target model.

Examples:
  strata generate code_review --var language=go --target claude
  strata generate code_review --vars-json '{"files": ["main.go"]}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("var")
		rawJSON, _ := cmd.Flags().GetString("vars-json")
		target, _ := cmd.Flags().GetString("target")
		raw, _ := cmd.Flags().GetBool("raw")

		vars, err := cli.ParseVars(pairs, rawJSON)
		if err != nil {
			return err
		}
		out := output(cmd)
		if raw {
			out.Pretty = false
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.Generate(ctx, app, cli.GenerateOptions{Task: args[0], Vars: vars, Target: target}, out)
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringArray("var", nil, "Template variable as key=value (repeatable)")
	generateCmd.Flags().String("vars-json", "", "Template variables as a JSON object")
	generateCmd.Flags().String("target", "", "Output framing: plain, claude, gpt or gemini (default from config)")
	generateCmd.Flags().Bool("raw", false, "Print the prompt without markdown rendering")
}
