package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tribalmingle/mobileapp-sub000/internal/engine"
)

var sendCmd = &cobra.Command{
	Use:   "send <thread-or-user-id> <text>...",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
			conv, err := e.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer conv.Close()

			msg, err := conv.Sender.Send(ctx, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if msg.ID == "" {
				printf(cmd, "sent\n")
				return nil
			}
			printf(cmd, "sent %s\n", msg.ID)
			return nil
		})
	},
}
