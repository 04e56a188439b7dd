// Package identity resolves who "me" and "the other side" are for a thread.
// Both ids are fixed once per thread open instead of being re-derived for
// every rendered message.
package identity

import (
	"strings"

	"github.com/tribalmingle/mobileapp-sub000/internal/model"
)

// Resolver supplies the local user's own id.
type Resolver interface {
	Self() string
}

// Static is a Resolver backed by a configured id.
type Static string

func (s Static) Self() string { return strings.TrimSpace(string(s)) }

// Pair is the resolved identity of a 1:1 conversation.
type Pair struct {
	Self    string
	Partner string
}

// ForThread resolves the pair for a thread. When the thread record is not
// known yet (a direct thread keyed by peer id), peerID names the partner.
func ForThread(r Resolver, t *model.Thread, peerID string) Pair {
	p := Pair{Self: r.Self(), Partner: strings.TrimSpace(peerID)}
	if t == nil {
		return p
	}
	for _, part := range t.Participants {
		if !model.SameID(part.ID, p.Self) {
			p.Partner = part.ID
			break
		}
	}
	return p
}

// IsMine reports whether msg was sent by the local user. The sender id is
// authoritative; a message without one is mine when it was addressed to the partner.
func (p Pair) IsMine(msg model.Message) bool {
	if msg.Pending {
		return true
	}
	if strings.TrimSpace(msg.SenderID) != "" {
		return model.SameID(msg.SenderID, p.Self)
	}
	return model.SameID(msg.ReceiverID, p.Partner)
}

// IsSelf reports whether id is the local user.
func (p Pair) IsSelf(id string) bool {
	return model.SameID(id, p.Self)
}
