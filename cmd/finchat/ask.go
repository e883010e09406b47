package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/finchat/internal/cli"
	"github.com/aretw0/finchat/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer a single query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, _, err := buildApp(cmd, false)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		id, _ := cmd.Flags().GetString("conversation")
		answer, err := app.Agent.Ask(ctx, id, strings.Join(args, " "))
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(answer)
		}
		rendered, err := tui.NewRenderer(os.Stdout)(answer.Text)
		if err != nil {
			rendered = answer.Text + "\n"
		}
		fmt.Print(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().String("conversation", "", "Conversation ID to continue")
	askCmd.Flags().Bool("json", false, "Print the answer as JSON")
}
