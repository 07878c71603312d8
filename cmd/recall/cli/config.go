package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/credential"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Store a configuration value. Keys ending in .api_key are encrypted at rest.
Run "recall config keys" for the list of settable keys.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if !credential.IsSecret(key) {
			// Reject unknown keys and malformed values before they are stored.
			if err := config.Default().Set(key, value); err != nil {
				return err
			}
		}

		s, vault, err := getStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := vault.Set(key, value); err != nil {
			return fmt.Errorf("failed to set config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", key)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		s, vault, err := getStore()
		if err != nil {
			return err
		}
		defer s.Close()

		val, err := vault.Get(key)
		if err != nil {
			return err
		}
		switch {
		case val == "":
			fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
		case credential.IsSecret(key):
			fmt.Fprintln(cmd.OutOrStdout(), credential.MaskSecret(val))
		default:
			fmt.Fprintln(cmd.OutOrStdout(), val)
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(config.Keys(), "\n"))
		fmt.Fprintln(cmd.OutOrStdout(), "openai.api_key\ngemini.api_key\nanthropic.api_key")
	},
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configKeysCmd)
}
