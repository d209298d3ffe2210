package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/docaudit/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var subject, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a push token for an event publisher",
		Long: `Mints an HS256 push token accepted by the /events endpoints.
The signing secret defaults to $PUSH_TOKEN_SECRET.`,
		Example: `  auditctl token --subject firestore-trigger --ttl 24h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("PUSH_TOKEN_SECRET")
			}
			if secret == "" {
				return errors.New("no signing secret: pass --secret or set PUSH_TOKEN_SECRET")
			}
			v, err := auth.NewPushTokenVerifier(secret, "")
			if err != nil {
				return err
			}
			token, err := v.Generate(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Token subject (publisher name)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultPushTokenExpiry, "Token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default $PUSH_TOKEN_SECRET)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
