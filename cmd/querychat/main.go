// Package main is the entry point for the querychat gateway and tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/querychat/internal/config"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "querychat",
		Short:         "Conversation manager for a natural-language to SQL chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	setup := func() (*config.Config, *logger.Logger, error) {
		cfg := config.Load()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		var (
			log *logger.Logger
			err error
		)
		if os.Getenv("ENV") == "development" {
			log, err = logger.NewDevelopment()
		} else {
			log, err = logger.New(cfg.LogLevel)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger.SetGlobal(log)
		return cfg, log, nil
	}

	root.AddCommand(
		newServeCommand(setup),
		newConversationsCommand(setup),
		newEventsCommand(setup),
	)
	return root
}

type setupFunc func() (*config.Config, *logger.Logger, error)
