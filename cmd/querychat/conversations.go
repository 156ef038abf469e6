package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/querychat/internal/render"
)

func envToken() string {
	return os.Getenv("QUERYCHAT_TOKEN")
}

func newConversationsCommand(setup setupFunc) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Hydrate from the remote store and print the conversation list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if token == "" {
				token = envToken()
			}

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.auth.SetToken(token); err != nil {
				return fmt.Errorf("invalid token: %w", err)
			}
			if err := a.store.HydrateFromRemote(cmd.Context()); err != nil {
				return err
			}

			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tUPDATED\tMESSAGES\tTITLE")
			for _, s := range a.store.Summaries() {
				marker := ""
				if s.Current {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					marker, s.ID, render.RelativeTime(s.LastUpdated, now), s.MessageCount, s.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default $QUERYCHAT_TOKEN)")
	return cmd
}
