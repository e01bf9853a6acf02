// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"clustersql/cli/internal/keychain"

	"github.com/spf13/cobra"
)

// forgetCmd clears the secrets saved by connect.
var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove the saved connection URL and password from the keychain",
	Long: `The forget command removes what 'clustersql connect' stored in the OS
keychain: the connection URL and the password for the configured user and
host. The config file is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		if err := km.Clear(cfg.User, cfg.Host); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✅ Saved connection details have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}
