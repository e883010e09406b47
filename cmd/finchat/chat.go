package main

import (
	"os"

	"github.com/aretw0/finchat/internal/cli"
	"github.com/aretw0/finchat/internal/presentation/tui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively, keeping one conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, logger, err := buildApp(cmd, false)
		if err != nil {
			return err
		}
		defer app.Close()

		id, _ := cmd.Flags().GetString("conversation")
		if id == "" {
			id = "cli-" + uuid.NewString()
		}

		interactive := term.IsTerminal(int(os.Stdout.Fd()))
		prompt := "> "
		if interactive {
			tui.PrintBanner(os.Stdout)
			prompt = tui.Prompt()
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		err = cli.Chat(ctx, app.Agent, os.Stdin, os.Stdout, cli.ChatOptions{
			ConversationID: id,
			Render:         tui.NewRenderer(os.Stdout),
			Prompt:         prompt,
			Logger:         logger,
		})
		return cli.HandleExecutionError(err)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("conversation", "", "Conversation ID to continue (default: a new one)")
}
