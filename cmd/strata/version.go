package main

import (
	"fmt"
	"runtime"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/render"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of strata",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "strata version %s\n", strata.Version)
		fmt.Fprintf(out, "go %s %s/%s, engines %s|%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH, render.EngineJinja, render.EngineGo)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
