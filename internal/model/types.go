package model

import (
	"strings"
	"time"
)

// LocalIDPrefix marks ids fabricated on the client for optimistic messages.
// The server never issues ids with this prefix.
const LocalIDPrefix = "local-"

// MessageStatus is the delivery state reported for a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Participant is one side of a conversation.
type Participant struct {
	ID           string
	Name         string
	PhotoURL     string
	IsOnline     *bool
	LastActiveAt *time.Time
}

// Message is a single chat message, either server-confirmed or pending.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
	Status     MessageStatus
	Pending    bool
}

// Thread is a conversation summary as listed by the server.
// Participants[0] is the other side in a 1:1 chat.
type Thread struct {
	ID           string
	Participants []Participant
	LastMessage  *Message
	UnreadCount  int
	UpdatedAt    time.Time
}

// Peer returns the other side of the conversation, or a zero Participant.
func (t Thread) Peer() Participant {
	if len(t.Participants) == 0 {
		return Participant{}
	}
	return t.Participants[0]
}

// PendingSend is an outgoing message that has not been confirmed yet.
type PendingSend struct {
	LocalID   string
	Target    string
	Content   string
	CreatedAt time.Time
}

// Message renders the pending send as an optimistic message.
func (p PendingSend) Message(selfID string) Message {
	return Message{
		ID:         p.LocalID,
		SenderID:   selfID,
		ReceiverID: p.Target,
		Content:    p.Content,
		CreatedAt:  p.CreatedAt,
		Status:     StatusSent,
		Pending:    true,
	}
}

// TypingState lists the users currently typing in a thread.
type TypingState struct {
	ThreadID string
	UserIDs  []string
}

// SameID compares two user or thread ids case-insensitively, ignoring surrounding space.
func SameID(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// IsLocalID reports whether id was fabricated for an optimistic message.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
