package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joncooperworks/plughost/trust"
)

func newSignCommand(app *App) *cobra.Command {
	var keyPath, keyID string

	cmd := &cobra.Command{
		Use:   "sign <module>...",
		Short: "Write a detached signature next to each module",
		Long: `Sign plugin modules with an ed25519 private key.

Each module gets a <module>.sig file. Hosts with [trust] enabled verify it
against the public key stored under the same key ID.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyPath == "" {
				return errors.New("--key is required")
			}
			if keyID == "" {
				return errors.New("--key-id is required")
			}

			data, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("failed to read private key file: %w", err)
			}
			priv, err := trust.ParsePrivateKeyPEM(data)
			if err != nil {
				return err
			}

			for _, module := range args {
				sigPath, err := trust.SignModule(priv, keyID, module)
				if err != nil {
					return fmt.Errorf("sign %s: %w", module, err)
				}
				app.Logger.Debug().Str("path", module).Str("key_id", keyID).Msg("module signed")
				fmt.Fprintf(cmd.OutOrStdout(), "Signed %s -> %s\n", module, sigPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "path to the ed25519 private key PEM (required)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "key ID recorded in the signature (required)")
	return cmd
}
