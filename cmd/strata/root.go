package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/strata/internal/cli"
	"github.com/aretw0/strata/internal/config"
	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/internal/presentation/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata composes prompts from layered rules",
	Long: `Strata resolves a task rule through its semantic and primitive rules,
renders the hierarchy bottom-up and frames the result for a target model.

Settings come from --config, STRATA_* environment variables and flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (YAML or TOML)")
	flags.String("store", config.BackendMemory, "Store backend: memory, yaml, loam, sqlite or redis")
	flags.String("path", "", "Corpus location for the yaml, loam and sqlite backends")
	flags.Bool("watch", false, "Reload the corpus when it changes (yaml and loam)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.Bool("json", false, "Print results as JSON")

	_ = v.BindPFlag("store.backend", flags.Lookup("store"))
	_ = v.BindPFlag("store.path", flags.Lookup("path"))
	_ = v.BindPFlag("store.watch", flags.Lookup("watch"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.json", flags.Lookup("log-json"))
}

// loadApp builds the app from the merged configuration.
func loadApp(ctx context.Context) (*cli.App, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", cfgFile)
		}
	}
	cfg, err := config.LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(ctx, cfg, logger)
}

// withApp runs fn with a loaded app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			app.Logger.Warn("closing store failed", zap.Error(cerr))
		}
		_ = app.Logger.Sync()
	}()
	return fn(ctx, app)
}

// output describes how the command prints. Markdown and colors are only used
// when stdout is a terminal.
func output(cmd *cobra.Command) cli.Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return cli.Output{
		W:      cmd.OutOrStdout(),
		JSON:   jsonMode,
		Pretty: !jsonMode && tui.IsTerminal(os.Stdout),
	}
}
