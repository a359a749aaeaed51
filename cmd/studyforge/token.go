package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/studyforge/internal/config"
	"github.com/jonathan/studyforge/internal/server"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a subject",
	Long:  "Signs a JWT with JWT_SECRET for local testing of the API. A random subject is used when --subject is omitted.",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Subject UUID to issue the token for")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	subject := uuid.New()
	if tokenSubject != "" {
		parsed, err := uuid.Parse(tokenSubject)
		if err != nil {
			return fmt.Errorf("invalid --subject: %w", err)
		}
		subject = parsed
	}

	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return err
	}
	token, err := server.NewJWTService(jwtCfg).GenerateToken(subject)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "subject: %s\ntoken:   %s\n", subject, token)
	return nil
}
