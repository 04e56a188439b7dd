package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tribalmingle/mobileapp-sub000/internal/engine"
	"github.com/tribalmingle/mobileapp-sub000/internal/model"
)

var threadsJSON bool

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd.Context(), false, func(ctx context.Context, e *engine.Engine) error {
			if err := e.Threads().Refresh(ctx); err != nil {
				return err
			}
			threads := e.Threads().Threads()
			if threadsJSON {
				return printThreadsJSON(cmd, e, threads)
			}
			return printThreads(cmd, e, threads)
		})
	},
}

func init() {
	threadsCmd.Flags().BoolVar(&threadsJSON, "json", false, "Output as JSON")
}

// ThreadInfo is the JSON form of a listed conversation.
type ThreadInfo struct {
	ID          string    `json:"id"`
	PeerID      string    `json:"peer_id"`
	PeerName    string    `json:"peer_name,omitempty"`
	Unread      int       `json:"unread"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastMessage string    `json:"last_message,omitempty"`
}

func threadInfo(e *engine.Engine, t model.Thread) ThreadInfo {
	info := ThreadInfo{
		ID:        t.ID,
		PeerID:    t.Peer().ID,
		PeerName:  t.Peer().Name,
		Unread:    e.Threads().Badge(t.ID),
		UpdatedAt: t.UpdatedAt,
	}
	if t.LastMessage != nil {
		info.LastMessage = t.LastMessage.Content
	}
	return info
}

func printThreadsJSON(cmd *cobra.Command, e *engine.Engine, threads []model.Thread) error {
	infos := make([]ThreadInfo, 0, len(threads))
	for _, t := range threads {
		infos = append(infos, threadInfo(e, t))
	}
	enc := json.NewEncoder(out(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(infos)
}

func printThreads(cmd *cobra.Command, e *engine.Engine, threads []model.Thread) error {
	if len(threads) == 0 {
		printf(cmd, "No conversations.\n")
		return nil
	}
	w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "THREAD\tWITH\tUNREAD\tUPDATED\tLAST MESSAGE")
	for _, t := range threads {
		info := threadInfo(e, t)
		with := info.PeerName
		if with == "" {
			with = info.PeerID
		}
		updated := "-"
		if !info.UpdatedAt.IsZero() {
			updated = info.UpdatedAt.Local().Format("Jan 2 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", info.ID, with, info.Unread, updated, truncate(info.LastMessage, 40))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	printf(cmd, "\n%d unread in total\n", e.Threads().TotalUnread())
	return nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
