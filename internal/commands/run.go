package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep the conversation list and unread badges in sync",
	Long: `Run the sync daemon for the configured account.

The conversation list is refreshed on an interval and whenever a push
notification arrives (when push.nats_url is set). Unread changes are printed
as they happen. Only one daemon may run per account.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := interruptible(cmd)
		defer cancel()
		return withEngine(ctx, true, func(ctx context.Context, e *engine.Engine) error {
			return watch(ctx, cmd, e)
		})
	},
}

func watch(ctx context.Context, cmd *cobra.Command, e *engine.Engine) error {
	events, unsub := e.Bus().Subscribe("", 64)
	defer unsub()
	notices := e.Flash().Watch()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-events:
			switch evt.Kind {
			case bus.KindThreadsUpdated:
				printf(cmd, "%s conversations: %v, unread: %d\n",
					evt.Timestamp.Format("15:04:05"), evt.Payload, e.Threads().TotalUnread())
			case bus.KindUnreadChanged:
				printf(cmd, "%s unread %s: %v\n", evt.Timestamp.Format("15:04:05"), evt.ThreadID, evt.Payload)
			}
		case n := <-notices:
			printf(cmd, "%s [%s] %s\n", time.Now().Format("15:04:05"), n.Level, n.Text)
		}
	}
}
