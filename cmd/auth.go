package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/gistflow/internal/google"
)

func newAuthCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize gistflow to access a Google account",
		Long: `Authorize gistflow for Gmail and Drive.

Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET, open the URL printed by
'gistflow auth url', grant access and pass the code shown to
'gistflow auth save'.`,
	}
	cmd.PersistentFlags().StringVar(&account, "account", "", "Account name (default: source.account from the config)")

	resolve := func() (string, error) {
		if account != "" {
			return account, nil
		}
		cfg, _, err := loadConfig(false)
		if err != nil {
			return "", err
		}
		return cfg.Source.Account, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "url",
		Short: "Print the consent URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := resolve()
			if err != nil {
				return err
			}
			tokens := google.NewTokenStore(google.DefaultTokenDir(), google.CredentialsFromEnv())
			fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authorize account %q:\n\n%s\n\nThen run: gistflow auth save --account %s <code>\n",
				acc, tokens.GetAuthURLForAccount(acc), acc)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <code>",
		Short: "Exchange an authorization code and store the token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := resolve()
			if err != nil {
				return err
			}
			tokens := google.NewTokenStore(google.DefaultTokenDir(), google.CredentialsFromEnv())
			if err := tokens.SaveTokenForAccount(cmd.Context(), acc, args[0]); err != nil {
				return fmt.Errorf("failed to save token for account %s: %w", acc, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved for account %q.\n", acc)
			return nil
		},
	})

	return cmd
}
