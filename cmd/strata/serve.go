package main

import (
	"context"
	"os"

	"github.com/aretw0/strata/internal/cli"
	"github.com/aretw0/strata/internal/presentation/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Starts Strata in server mode, exposing generation, introspection, validation and cache operations as a JSON API over HTTP.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tui.IsTerminal(os.Stderr) {
			tui.PrintBanner(os.Stderr)
		}
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if app.Config.Store.Watch {
				app.Follow(sigCtx)
			}
			err := cli.Serve(sigCtx, app, app.Config.Server.Port)
			if sig := sigCtx.Signal(); sig != nil {
				app.Logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("server.metrics", serveCmd.Flags().Lookup("metrics"))
}
