package main

import (
	"fmt"

	"github.com/agentuity/storefront/authentication"
	"github.com/agentuity/storefront/config"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an admin bearer token signed with SECRET_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			secret := config.FlagOrEnv(cmd, "secret", "SECRET_KEY", cfg.SecretKey)
			if secret == "" {
				return errors.New("SECRET_KEY is required")
			}
			raw, _ := cmd.Flags().GetString("ttl")
			ttl, err := str2duration.ParseDuration(raw)
			if err != nil {
				return errors.Wrapf(err, "invalid --ttl %q", raw)
			}
			token, err := authentication.NewBearerToken(secret, authentication.WithTTL(ttl))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("ttl", "1d", "token lifetime, e.g. 12h, 1d or 2w")
	cmd.Flags().String("secret", "", "signing secret (default from SECRET_KEY)")
	return cmd
}
