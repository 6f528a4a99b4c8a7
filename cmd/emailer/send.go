package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"emailer/internal/types"
)

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <recipient>",
		Short: "Send a test message immediately",
		Long: `Send a fixed test message to recipient through the configured
mail provider, bypassing the queue. Any delivery error is reported and the
command exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			logger := &slogAdapter{logger: a.logger}
			mailer, err := a.newMailer(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("creating mailer: %w", err)
			}

			msg := types.Message{
				ID:         uuid.NewString(),
				Subject:    fmt.Sprintf("[kinto-emailer] Test message from %s", cfg.Emailer.ProjectName),
				Sender:     cfg.Mail.DefaultSender,
				Recipients: []string{args[0]},
				Body:       "If you received this, mail delivery is configured correctly.",
			}
			if err := mailer.SendImmediately(cmd.Context(), msg); err != nil {
				return fmt.Errorf("sending test message: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test message %s sent to %s\n", msg.ID, args[0])
			return nil
		},
	}
}
