// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/httperrors"
	"sqlgate/cli/internal/keychain"
	"sqlgate/cli/internal/llm"
	"sqlgate/cli/internal/logging"
	"sqlgate/cli/internal/terminal"

	"github.com/spf13/cobra"
)

var loginNoVerify bool

// loginCmd stores the model API key in the OS keychain.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Store your model API key in the OS keychain",
	Long: `The login command asks for an OpenRouter API key, checks it with a tiny request
and stores it in the OS keychain. The key can also be piped in on stdin.
OPENROUTER_API_KEY in the environment always takes precedence.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := terminal.ReadSecret("OpenRouter API key: ")
		if err != nil {
			return fmt.Errorf("read API key: %w", err)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return errors.New(errors.ConfigInvalid, "API key is required")
		}

		out := cmd.OutOrStdout()
		if !loginNoVerify {
			if err := verifyAPIKey(cmd.Context(), key); err != nil {
				fmt.Fprint(out, httperrors.Describe(err, "verifying the key with "+httperrors.ExtractHostFromURL(cfg.Model.BaseURL)))
				return err
			}
		}

		km, err := keychain.GetManager()
		if err != nil {
			fmt.Fprintln(out, "❌ Secure storage is not available on this system.")
			fmt.Fprintln(out, "   Set OPENROUTER_API_KEY in your environment instead.")
			return err
		}
		if err := km.SaveAPIKey(key); err != nil {
			return err
		}
		fmt.Fprintf(out, "✅ API key %s saved. You're ready to run 'sqlgate chat'\n", logging.Redact(key))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().BoolVar(&loginNoVerify, "no-verify", false, "store the key without a test request")
}

func verifyAPIKey(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewOpenRouter(llm.Config{
		APIKey:    key,
		BaseURL:   cfg.Model.BaseURL,
		Model:     cfg.Model.Name,
		MaxTokens: 1,
		Timeout:   30 * time.Second,
	}, logger)
	_, err := client.Complete(ctx, []llm.Message{llm.User("ping")})
	return err
}
