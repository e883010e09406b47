package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/finchat"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of finchat",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("finchat version %s\n", strings.TrimSpace(finchat.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
