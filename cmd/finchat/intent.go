package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/pkg/adapters/openai"
	"github.com/aretw0/finchat/pkg/intent"
	"github.com/spf13/cobra"
)

var intentCmd = &cobra.Command{
	Use:   "intent <query>",
	Short: "Classify a query into one of the configured intents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if err := cfg.RequireLLM(); err != nil {
			return err
		}

		chat, err := openai.New(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, openai.WithLogger(logging.Component(logger, "openai")))
		if err != nil {
			return err
		}
		catalog, err := intent.Load(cfg.Intents.File)
		if err != nil {
			return err
		}
		classifier, err := intent.NewClassifier(chat, catalog, intent.WithLogger(logger))
		if err != nil {
			return err
		}

		c, err := classifier.Classify(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

func init() {
	rootCmd.AddCommand(intentCmd)
	intentCmd.Flags().String("intents", "", "Intent catalog YAML (default: built-in)")
	bindLocal(intentCmd, "intents.file", "intents")
}
