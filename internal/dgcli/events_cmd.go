package dgcli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var eventsTypeFilter string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow the live governance event feed",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = client.StreamEvents(ctx, func(evt EventEnvelope) bool {
			if eventsTypeFilter != "" && !strings.HasPrefix(evt.Type, eventsTypeFilter) {
				return true
			}
			ts := evt.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-24s %s %s\n",
				ts.Format("15:04:05"), evt.Type, shortID(evt.ID), string(evt.Payload))
			return true
		})
		if err != nil && ctx.Err() == nil {
			exitWithError(cmd, err)
		}
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsTypeFilter, "type", "", "Only show events whose type has this prefix")
}
