package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	natsclient "github.com/capitalize-ai/querychat/internal/nats"
)

func newEventsCommand(setup setupFunc) *cobra.Command {
	var (
		after uint64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print view events mirrored into NATS JetStream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if !cfg.NATSEnabled() {
				return errors.New("NATS_URL is not set")
			}

			nc, err := natsclient.Connect(cmd.Context(), natsclient.Config{
				URL:      cfg.NATSURL,
				CAFile:   cfg.NATSCAFile,
				CertFile: cfg.NATSCertFile,
				KeyFile:  cfg.NATSKeyFile,
				Token:    cfg.NATSToken,
			}, log)
			if err != nil {
				return err
			}
			defer nc.Close()

			events, _, err := natsclient.NewPublisher(nc).Recent(cmd.Context(), after, limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "only events after this stream sequence")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	return cmd
}
