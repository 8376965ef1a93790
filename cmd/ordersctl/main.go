// Command ordersctl is the operator tool for the order detection userbot:
// schema migrations, reports, exports, feedback and history import.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Viphunter83/userbot-orders/internal/app"
	"github.com/Viphunter83/userbot-orders/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, s := newRootCmd()
	err := root.ExecuteContext(ctx)
	s.close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// state is shared by every subcommand of one invocation
type state struct {
	logLevel string
	app      *app.App
}

// open loads configuration and wires the application once per invocation
func (s *state) open(cmd *cobra.Command) (*app.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	cfg, err := config.Load(config.ScopeCLI)
	if err != nil {
		return nil, err
	}
	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	}
	a, err := app.New(cmd.Context(), cfg, setupLogger(cfg.LogLevel))
	if err != nil {
		return nil, err
	}
	s.app = a
	return a, nil
}

func (s *state) close() {
	if s.app != nil {
		s.app.Close()
		s.app = nil
	}
}

func newRootCmd() (*cobra.Command, *state) {
	s := &state{}
	root := &cobra.Command{
		Use:          "ordersctl",
		Short:        "Operate the order detection userbot",
		Long:         `Apply migrations, read reports, export and review orders, and import Telegram history.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(s),
		newStatsCmd(s),
		newOrdersCmd(s),
		newExportCmd(s),
		newFeedbackCmd(s),
		newReprocessCmd(s),
		newChatsCmd(s),
		newImportCmd(s),
		newHealthCmd(s),
	)
	return root, s
}

// setupLogger writes human readable logs to stderr so stdout stays clean
func setupLogger(level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(logLevel).With().Timestamp().Logger()
}
