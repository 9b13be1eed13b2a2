package main

import (
	"time"

	"github.com/spf13/cobra"
)

type tokenOutput struct {
	Address   string    `json:"address" yaml:"address"`
	Secret    string    `json:"secret" yaml:"secret"`
	ExpiresAt time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Mint a Farcaster bearer token from the configured seed phrase or private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			signer, err := credentialsFromEnv().signer()
			if err != nil {
				return err
			}

			fc := newFarcasterClient(logger, nil)
			tok, err := fc.GenerateToken(cmd.Context(), signer, time.Now())
			if err != nil {
				return err
			}

			out := tokenOutput{Address: signer.Address(), Secret: tok.Secret, ExpiresAt: tok.ExpiresAt}
			return printValue(cmd.OutOrStdout(), output, out, func(p *printer) {
				p.line("BEARER TOKEN: %s", tok.Secret)
				p.field("address", out.Address)
				if !out.ExpiresAt.IsZero() {
					p.field("expires", out.ExpiresAt.Format(time.RFC3339))
				}
			})
		},
	}
}
