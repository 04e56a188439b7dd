// chatsync keeps a dating-app inbox in sync from the command line: it polls
// conversations, reconciles unread badges, tails threads and sends messages.
package main

import (
	"fmt"
	"os"

	"github.com/tribalmingle/mobileapp-sub000/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
