package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/illmade-knight/go-apicache/pkg/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the configured key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			authenticator, err := auth.NewAuthenticator(a.cfg.Auth, a.logger)
			if err != nil {
				return err
			}
			token, err := authenticator.IssueToken(subject, roles, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject (required)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant; repeat or comma-separate for several")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
