package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tribalmingle/mobileapp-sub000/internal/engine"
)

var reportCmd = &cobra.Command{
	Use:   "report <thread-id> <reason>...",
	Short: "Report a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
			conv, err := e.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer conv.Close()
			if err := conv.Report(ctx, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			printf(cmd, "reported %s\n", args[0])
			return nil
		})
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <user-id>",
	Short: "Block a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
			if err := e.Block(ctx, args[0]); err != nil {
				return err
			}
			printf(cmd, "blocked %s\n", args[0])
			return nil
		})
	},
}
