package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shopbot/internal/token"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Make sure a valid backend token is stored and print its expiry",
		Long: "token reads the stored Moltin access token, renews it when it is missing or " +
			"expired, and prints the expiry time in the format the bot stores it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.tokens.Token(cmd.Context()); err != nil {
				return fmt.Errorf("obtaining token: %w", err)
			}
			expiry, err := a.tokens.Expiry(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading token expiry: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "token valid until %s\n", expiry.Format(token.ExpiryLayout))
			return err
		},
	}
}
