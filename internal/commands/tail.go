package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tribalmingle/mobileapp-sub000/internal/engine"
	"github.com/tribalmingle/mobileapp-sub000/internal/model"
)

var tailLoadMore int

var tailCmd = &cobra.Command{
	Use:   "tail <thread-or-user-id>",
	Short: "Print a conversation and follow new messages",
	Long: `Open a conversation, print it and keep printing new messages until
interrupted. Opening a conversation marks it read.

Examples:
  chatsync tail 65f0c2...          # a listed thread
  chatsync tail user42 --older 2   # direct thread, two extra older pages`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := interruptible(cmd)
		defer cancel()
		return withEngine(ctx, false, func(ctx context.Context, e *engine.Engine) error {
			conv, err := e.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer conv.Close()

			for i := 0; i < tailLoadMore && conv.HasMore(); i++ {
				if err := conv.LoadMore(ctx); err != nil {
					return err
				}
			}
			follow(ctx, cmd, conv)
			return nil
		})
	},
}

func init() {
	tailCmd.Flags().IntVar(&tailLoadMore, "older", 0, "Load this many older pages first")
}

func follow(ctx context.Context, cmd *cobra.Command, conv *engine.Conversation) {
	printed := make(map[string]bool)
	peerTyping := false
	flush := func() {
		for _, m := range conv.Messages() {
			if m.Pending || printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			printMessage(cmd, conv, m)
		}
		if t := conv.Typing.PeerTyping(); t != peerTyping {
			peerTyping = t
			if t {
				printf(cmd, "… typing\n")
			}
		}
	}
	flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conv.Changes():
			flush()
		case <-conv.Typing.Changes():
			flush()
		}
	}
}

func printMessage(cmd *cobra.Command, conv *engine.Conversation, m model.Message) {
	who := "them"
	if conv.IsMine(m) {
		who = "me"
	}
	stamp := "--:--"
	if !m.CreatedAt.IsZero() {
		stamp = m.CreatedAt.Local().Format("Jan 2 15:04")
	}
	printf(cmd, "[%s] %s: %s\n", stamp, who, m.Content)
}
