// Package main is the emailer operations CLI.
//
//	emailer send <recipient>            send a test message immediately
//	emailer validate <file> --bucket b  check a hook declaration file
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"emailer/internal/config"
	"emailer/internal/external"
	"emailer/internal/notifications/email"
	"emailer/internal/types"
)

func main() {
	if err := newRootCmd(defaultApp()).Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the dependencies shared by the commands.
type app struct {
	stdout     io.Writer
	logger     *slog.Logger
	loadConfig func() (*config.Config, error)
	newMailer  func(ctx context.Context, cfg *config.Config, logger types.Logger) (email.Mailer, error)
}

func defaultApp() *app {
	return &app{
		stdout: os.Stdout,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		loadConfig: func() (*config.Config, error) {
			return config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
		},
		newMailer: newDispatcher,
	}
}

// newDispatcher builds the immediate-delivery mailer selected by cfg.Mail.
func newDispatcher(ctx context.Context, cfg *config.Config, logger types.Logger) (email.Mailer, error) {
	registry, err := external.NewClientRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return email.NewDispatcher(email.DispatcherConfig{
		Provider:      registry.Email,
		DefaultSender: cfg.Mail.DefaultSender,
		Logger:        logger,
	}), nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "emailer",
		Short: "Operations tooling for the emailer service",
		Long: `Operations tooling for the emailer service.

Configuration is read from the environment (and .env) exactly as the
API server reads it.

Example:
  emailer send ops@example.com
  emailer validate hooks.yaml --bucket blog`,
		SilenceUsage: true,
	}
	root.SetOut(a.stdout)
	root.AddCommand(newSendCmd(a))
	root.AddCommand(newValidateCmd(a))
	return root
}

// slogAdapter wraps *slog.Logger to implement types.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (s *slogAdapter) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *slogAdapter) Error(msg string, args ...any) { s.logger.Error(msg, args...) }
func (s *slogAdapter) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: s.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)
