package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/coursepilot/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed access token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not set (COURSEPILOT_AUTH_JWT_SECRET)")
		}
		v, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			return err
		}

		f := cmd.Flags()
		subject, _ := f.GetString("subject")
		email, _ := f.GetString("email")
		name, _ := f.GetString("name")
		ttl, _ := f.GetDuration("ttl")

		tok, err := v.Issue(auth.Identity{Subject: subject, Email: email, Name: name}, ttl)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	f := tokenCmd.Flags()
	f.String("subject", "dev-teacher", "Token subject (external user id)")
	f.String("email", "", "Email claim")
	f.String("name", "", "Display name claim")
	f.Duration("ttl", 24*time.Hour, "Token lifetime")
}
