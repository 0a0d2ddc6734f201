package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	notificationlog "github.com/fatflowers/cashier-stripe/internal/app/service/notification_log"
	"github.com/fatflowers/cashier-stripe/internal/app/service/webhook"
)

var (
	replaySince  time.Duration
	replayLimit  int
	replayDryRun bool
)

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run webhook events whose handling failed",
		Long: `Replay webhook events that were received but not handled.

Each event id is replayed once, using its latest stored payload. Events that
were handled or replayed since are skipped. The signature is not checked
again; the payload was verified when it was first received.

Examples:
  cashierctl replay --since 72h
  cashierctl replay --limit 20 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				notif *notificationlog.Service
				rec   *webhook.Reconciler
			)
			return withApp(cmd.Context(), func() error {
				ctx := cmd.Context()
				entries, err := notif.ListUnhandled(ctx, time.Now().Add(-replaySince), replayLimit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "nothing to replay")
					return nil
				}
				failed := 0
				for _, e := range entries {
					if replayDryRun {
						fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", e.EventID, e.EventType, e.ReferenceID, e.CreatedAt.Format(time.RFC3339))
						continue
					}
					ack := rec.Reprocess(ctx, e.Data)
					if ack.Token == webhook.TokenError {
						failed++
					}
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", e.EventID, e.EventType, e.ReferenceID, ack.Token)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d events failed again", failed, len(entries))
				}
				return nil
			}, &notif, &rec)
		},
	}

	cmd.Flags().DurationVar(&replaySince, "since", 24*time.Hour, "only events received within this window")
	cmd.Flags().IntVarP(&replayLimit, "limit", "n", 100, "maximum events to replay")
	cmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "list the events without replaying them")
	return cmd
}
