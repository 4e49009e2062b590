package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joncooperworks/plughost/trust"
)

func newKeysCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage keys trusted to sign plugin modules",
		Example: `  # Generate a signing key pair
  plughost keys generate --private signing.pem --public signing.pub.pem

  # Trust a public key
  plughost keys add release signing.pub.pem

  # List trusted keys
  plughost keys list`,
	}

	cmd.AddCommand(newKeysAddCommand(app))
	cmd.AddCommand(newKeysListCommand(app))
	cmd.AddCommand(newKeysGenerateCommand())
	return cmd
}

func newKeysAddCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <key-id> <public-key.pem>",
		Short: "Import a public key into the trust store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID, keyPath := args[0], args[1]

			data, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("failed to read public key file: %w", err)
			}
			pub, err := trust.ParsePublicKeyPEM(data)
			if err != nil {
				return err
			}

			store, err := openStore(app)
			if err != nil {
				return err
			}
			if err := store.SetPublicKey(keyID, pub); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Public key imported successfully:\n")
			fmt.Fprintf(out, "  Source: %s\n", keyPath)
			fmt.Fprintf(out, "  Key ID: %s\n", keyID)
			return nil
		},
	}
}

func newKeysListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trusted key IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(app)
			if err != nil {
				return err
			}
			keys, err := store.ListKeys()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				fmt.Fprintln(out, "No keys found in trust store")
				return nil
			}
			fmt.Fprintf(out, "Keys in trust store (%d):\n", len(keys))
			for _, keyID := range keys {
				fmt.Fprintf(out, "  - %s\n", keyID)
			}
			return nil
		},
	}
}

func newKeysGenerateCommand() *cobra.Command {
	var privatePath, publicPath string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an ed25519 signing key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			privPEM, pubPEM, err := trust.GenerateKey()
			if err != nil {
				return err
			}
			if err := os.WriteFile(privatePath, privPEM, 0o600); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			if err := os.WriteFile(publicPath, pubPEM, 0o644); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Keys generated successfully:\n")
			fmt.Fprintf(out, "  Private key: %s\n", privatePath)
			fmt.Fprintf(out, "  Public key: %s\n", publicPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&privatePath, "private", "private.pem", "path to save the private key")
	cmd.Flags().StringVar(&publicPath, "public", "public.pem", "path to save the public key")
	return cmd
}

func openStore(app *App) (trust.KeyStore, error) {
	if app.OpenKeyStore == nil {
		return nil, errors.New("no key store configured")
	}
	store, err := app.OpenKeyStore(app.Config.Trust)
	if err != nil {
		return nil, fmt.Errorf("failed to open trust store: %w", err)
	}
	return store, nil
}
