package bus

import "time"

// Event kinds published by the engine and its push sources.
const (
	KindPushPrefix     = "push."
	KindPushMessage    = "push.message"
	KindThreadsUpdated = "threads.updated"
	KindUnreadChanged  = "unread.changed"
	KindMessageAck     = "message.send_ack"
	KindMessageFailed  = "message.send_failed"
)

// Event is a notification carried on the bus. ThreadID is empty for events
// that are not tied to a single conversation.
type Event struct {
	Kind      string
	ThreadID  string
	Timestamp time.Time
	Payload   any
}

// PushKind maps a push-notification type ("message", "match", ...) to its bus kind.
func PushKind(pushType string) string {
	return KindPushPrefix + pushType
}
