package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and check the SMTP relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sender, err := newSender(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Mail.Timeout)
		defer cancel()
		if err := sender.Check(ctx); err != nil {
			return err
		}

		zap.S().Infow("SMTP relay accepted STARTTLS and credentials", "server", cfg.Mail.SMTPServer, "port", cfg.Mail.SMTPPort)
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	},
}
