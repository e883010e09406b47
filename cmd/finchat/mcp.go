package main

import (
	"fmt"

	"github.com/aretw0/finchat"
	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp <ledger.yaml>",
	Short: "Run the ledger MCP server over stdio",
	Long: `Serves get_balance, list_transactions and run_sparql over a YAML ledger.
It stands in for the knowledge-graph MCP server during development:

  FINCHAT_MCP_COMMAND=finchat FINCHAT_MCP_ARGS=mcp,ledger.yaml finchat chat`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := setup(cmd)
		if err != nil {
			return err
		}

		ledger, err := mcp.LoadLedger(args[0])
		if err != nil {
			return err
		}

		// Logs go to stderr; stdout carries JSON-RPC.
		srv := mcp.NewServer(ledger, finchat.Version, logging.Component(logger, "mcp"))
		logger.Info("Starting ledger MCP server (stdio)", "ledger", args[0], "accounts", len(ledger.Accounts))
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("MCP server execution failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
