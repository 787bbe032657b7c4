package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/jordanhubbard/relay/pkg/models"
)

func newSecretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage webhook secrets in the config file",
	}
	cmd.AddCommand(newSecretSetCommand())
	return cmd
}

// newSecretSetCommand writes a webhook secret into the YAML config without
// echoing it to the terminal. The running server picks the change up
// through config hot reload.
func newSecretSetCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Set a provider webhook secret (prompted, no echo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := models.ParseProvider(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Secret for %s: ", provider)
			secret, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to read secret: %w", err)
			}
			if len(strings.TrimSpace(string(secret))) == 0 {
				return fmt.Errorf("empty secret; to disable validation, edit the config directly")
			}

			return writeSecret(configPath, string(provider), strings.TrimSpace(string(secret)))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the relay config file")
	return cmd
}

// writeSecret round-trips the YAML through a generic node tree so unrelated
// keys, comments excluded, survive unchanged.
func writeSecret(path, provider, secret string) error {
	doc := map[string]interface{}{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// A fresh file gets created with just the secret in it.
	default:
		return err
	}

	webhooks, _ := doc["webhooks"].(map[string]interface{})
	if webhooks == nil {
		webhooks = map[string]interface{}{}
		doc["webhooks"] = webhooks
	}
	secrets, _ := webhooks["secrets"].(map[string]interface{})
	if secrets == nil {
		secrets = map[string]interface{}{}
		webhooks["secrets"] = secrets
	}
	secrets[provider] = secret

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return err
	}

	fmt.Printf("secret for %s written to %s\n", provider, path)
	return nil
}
