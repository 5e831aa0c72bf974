package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/secrets"
	"github.com/XAVware/ONYX/internal/terminal"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage LLM provider API keys",
	Long:  "Store API keys in the OS keychain (or ~/.onyx/keys.json where no keychain is available). Environment variables always take precedence.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return keysStatusRun(cmd)
	},
}

var keysSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := keyProvider(args[0])
		if err != nil {
			return err
		}
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		key, err := readKey(cmd, provider)
		if err != nil {
			return err
		}
		if key == "" {
			return fmt.Errorf("empty key")
		}
		store := a.keyStore()
		if err := store.Set(secrets.KeyName(provider), key); err != nil {
			return fmt.Errorf("failed to store key: %w", err)
		}
		terminal.Success(fmt.Sprintf("Stored %s key (%s)", provider, store.Backend()))
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := keyProvider(args[0])
		if err != nil {
			return err
		}
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.keyStore().Delete(secrets.KeyName(provider)); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
		terminal.Success(fmt.Sprintf("Removed %s key", provider))
		return nil
	},
}

func keysStatusRun(cmd *cobra.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	store := a.keyStore()
	terminal.Header("API keys")
	for _, p := range config.Providers {
		if p == "claude-cli" {
			continue
		}
		switch _, err := secrets.APIKey(store, p); {
		case err == nil:
			terminal.Detail(p, "configured")
		case errors.Is(err, secrets.ErrNotFound):
			terminal.Detail(p, "not set ("+strings.Join(secrets.EnvVars(p), " or ")+")")
		default:
			terminal.Detail(p, "unreadable: "+err.Error())
		}
	}
	terminal.Detail("Backend", store.Backend())
	return nil
}

func keyProvider(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "claude-cli" {
		return "", fmt.Errorf("claude-cli uses your Claude Code login and needs no key")
	}
	if !config.KnownProvider(name) {
		return "", fmt.Errorf("unknown provider %q (want one of %s)", name, strings.Join(config.Providers[1:], ", "))
	}
	return name, nil
}

// readKey prompts without echo on a terminal and reads one line otherwise.
func readKey(cmd *cobra.Command, provider string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(cmd.OutOrStdout(), "Paste your %s API key: ", provider)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysDeleteCmd)
}
