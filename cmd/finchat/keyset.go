package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/finchat/pkg/persistence/middleware"
	"github.com/spf13/cobra"
)

var keysetCmd = &cobra.Command{
	Use:   "keyset",
	Short: "Manage the keyset used to encrypt stored conversations",
}

var keysetNewCmd = &cobra.Command{
	Use:   "new <file>",
	Short: "Create a keyset file with a single AES-256-GCM key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use 'finchat keyset rotate' to add a key", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		handle, err := middleware.NewKeyset()
		if err != nil {
			return err
		}
		if err := middleware.SaveKeyset(handle, path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (primary key %d)\n", path, handle.KeysetInfo().GetPrimaryKeyId())
		return nil
	},
}

var keysetRotateCmd = &cobra.Command{
	Use:   "rotate <file>",
	Short: "Add a new primary key, keeping older keys for decryption",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		handle, err := middleware.LoadKeyset(path)
		if err != nil {
			return err
		}
		rotated, err := middleware.RotateKeyset(handle)
		if err != nil {
			return err
		}
		if err := middleware.SaveKeyset(rotated, path); err != nil {
			return err
		}
		info := rotated.KeysetInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "rotated %s (primary key %d, %d keys)\n", path, info.GetPrimaryKeyId(), len(info.GetKeyInfo()))
		return nil
	},
}

func init() {
	keysetCmd.AddCommand(keysetNewCmd, keysetRotateCmd)
	rootCmd.AddCommand(keysetCmd)
}
