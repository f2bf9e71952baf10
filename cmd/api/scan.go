package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/justsurfingit/nextsteps/internal/auth"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan your Gmail inbox once from the terminal",
	Long: "Authorizes Gmail with a saved token file (or prompts for a consent code on first use), " +
		"then runs one scan for the account that owns the token and prints the report.",
	RunE: runScan,
}

var tokenFile string

func init() {
	scanCmd.Flags().StringVar(&tokenFile, "token-file", "token.json", "Where the Gmail OAuth token is cached")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	oauthCfg := auth.NewConfig(a.cfg.GoogleClientID, a.cfg.GoogleClientSecret, a.cfg.RedirectURL())
	tok, err := auth.TerminalToken(ctx, oauthCfg, tokenFile, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("authorize Gmail: %w", err)
	}

	email, err := a.mail.Profile(ctx, tok.AccessToken)
	if err != nil {
		return err
	}
	user, err := a.users.UpsertFromGoogle(ctx, email, "", "")
	if err != nil {
		return err
	}

	if err := a.withScan(ctx); err != nil {
		return err
	}
	report, err := a.scan.Scan(ctx, user, tok.AccessToken)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
