package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/matt0x6f/irc-relay/internal/security"
	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage passwords kept in the system keychain",
	Long: `Passwords stored here are referenced from the configuration as
"keyring:<account>".`,
}

var secretSetCmd = &cobra.Command{
	Use:   "set <account>",
	Short: "Store a password read from standard input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return fmt.Errorf("empty password")
		}
		if err := security.NewKeychain().StorePassword(args[0], password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored; reference it as %s%s\n", security.SecretPrefix, args[0])
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <account>",
	Short: "Remove a stored password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return security.NewKeychain().DeletePassword(args[0])
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd, secretDeleteCmd)
}
