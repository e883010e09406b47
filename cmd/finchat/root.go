package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/finchat/internal/cli"
	"github.com/aretw0/finchat/internal/config"
	"github.com/aretw0/finchat/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:           "finchat",
	Short:         "finchat answers questions about your finances",
	Long:          `finchat forwards natural-language questions to a chat-completion model that reads your financial data through the tools of an MCP server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("env-file", ".env", "Path to a .env file loaded before the environment is read")
	flags.String("fixture", "", "Serve tools from this ledger YAML in-process instead of launching mcp.command")
	flags.Bool("debug", false, "Log every driver event")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("model", "", "Chat-completion model")
	flags.Int("max-hops", 0, "Tool-bearing round trips allowed per query")

	bind(v, "log.level", "log-level")
	bind(v, "log.format", "log-format")
	bind(v, "llm.model", "model")
	bind(v, "agent.max_hops", "max-hops")
}

func bind(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// setup loads the configuration and builds the logger every command uses.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, nil, err
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(level, cfg.Log.Format), nil
}

// buildApp wires the agent for commands that answer queries.
func buildApp(cmd *cobra.Command, withMetrics bool) (*cli.App, *config.Config, *slog.Logger, error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	fixture, _ := cmd.Flags().GetString("fixture")
	debug, _ := cmd.Flags().GetBool("debug")

	app, err := cli.Build(cfg, logger, cli.BuildOptions{
		FixtureLedger: fixture,
		Debug:         debug,
		WithMetrics:   withMetrics,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return app, cfg, logger, nil
}
