// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"sqlgate/cli/internal/keychain"

	"github.com/spf13/cobra"
)

var (
	logoutAll bool
	logoutDB  bool
)

// logoutCmd removes stored secrets from the OS keychain.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API key or database DSN",
	Long: `The logout command removes the model API key from the OS keychain. With --all
the stored database DSN is removed as well; --db removes only the DSN. Environment variables and the
config file are left untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case logoutAll:
			if err := km.ClearAll(); err != nil {
				return err
			}
			fmt.Fprintln(out, "✅ API key and database connection have been removed")
		case logoutDB:
			if err := km.ClearDB(); err != nil {
				return err
			}
			fmt.Fprintln(out, "✅ Database connection has been removed")
		default:
			if err := km.ClearAPIKey(); err != nil {
				return err
			}
			fmt.Fprintln(out, "✅ API key has been removed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "also remove the stored database DSN")
	logoutCmd.Flags().BoolVar(&logoutDB, "db", false, "remove only the stored database DSN")
}
