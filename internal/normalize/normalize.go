package normalize

import (
	"strings"

	"github.com/tribalmingle/mobileapp-sub000/internal/model"
)

type participantRecord struct {
	ID          string `json:"id"`
	UnderID     string `json:"_id"`
	UserID      string `json:"userId"`
	UserIDSnake string `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`

	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	FullName    string `json:"fullName"`
	FirstName   string `json:"firstName"`
	FirstSnake  string `json:"first_name"`
	LastName    string `json:"lastName"`

	PhotoURL      string `json:"photoUrl"`
	PhotoURLSnake string `json:"photo_url"`
	Photo         any    `json:"photo"`
	Avatar        string `json:"avatar"`
	AvatarURL     string `json:"avatarUrl"`
	ProfilePhoto  any    `json:"profilePhoto"`
	Photos        []any  `json:"photos"`

	IsOnline      *bool `json:"isOnline"`
	IsOnlineSnake *bool `json:"is_online"`
	Online        *bool `json:"online"`

	LastActiveAt    any `json:"lastActiveAt"`
	LastActiveSnake any `json:"last_active_at"`
	LastActive      any `json:"lastActive"`
	LastSeen        any `json:"lastSeen"`

	User any `json:"user"`
}

// Participant normalizes one participant record. A bare scalar is taken as
// the participant's id.
func Participant(raw any) model.Participant {
	var rec participantRecord
	if !decode(raw, &rec) {
		return model.Participant{ID: idOf(raw)}
	}
	p := model.Participant{
		ID: first(rec.ID, rec.UnderID, rec.UserID, rec.UserIDSnake, rec.Email, rec.Username),
	}
	if p.ID == "" && rec.User != nil {
		return Participant(rec.User)
	}

	full := strings.TrimSpace(first(rec.FirstName, rec.FirstSnake) + " " + rec.LastName)
	p.Name = first(rec.Name, rec.DisplayName, rec.FullName, full, rec.Username)
	p.PhotoURL = first(rec.PhotoURL, rec.PhotoURLSnake, urlOf(rec.Photo), rec.Avatar, rec.AvatarURL, urlOf(rec.ProfilePhoto))
	if p.PhotoURL == "" && len(rec.Photos) > 0 {
		p.PhotoURL = urlOf(rec.Photos[0])
	}
	for _, v := range []*bool{rec.IsOnline, rec.IsOnlineSnake, rec.Online} {
		if v != nil {
			online := *v
			p.IsOnline = &online
			break
		}
	}
	if ts := firstTime(rec.LastActiveAt, rec.LastActiveSnake, rec.LastActive, rec.LastSeen); !ts.IsZero() {
		p.LastActiveAt = &ts
	}
	if p.ID == "" {
		p.ID = fallbackID(raw)
	}
	return p
}

// urlOf reads a photo given either as a URL string or as {url: ...}.
func urlOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		var rec struct {
			URL    string `json:"url"`
			Src    string `json:"src"`
			URI    string `json:"uri"`
			Secure string `json:"secure_url"`
		}
		decode(t, &rec)
		return first(rec.URL, rec.Secure, rec.Src, rec.URI)
	}
	return ""
}

type messageRecord struct {
	ID         string `json:"id"`
	UnderID    string `json:"_id"`
	MessageID  string `json:"messageId"`
	MessageID2 string `json:"message_id"`
	UUID       string `json:"uuid"`

	SenderID    string `json:"senderId"`
	SenderSnake string `json:"sender_id"`
	From        any    `json:"from"`
	FromUserID  string `json:"fromUserId"`
	UserID      string `json:"userId"`
	Sender      any    `json:"sender"`

	ReceiverID    string `json:"receiverId"`
	ReceiverSnake string `json:"receiver_id"`
	To            any    `json:"to"`
	ToUserID      string `json:"toUserId"`
	RecipientID   string `json:"recipientId"`
	Receiver      any    `json:"receiver"`

	Content string `json:"content"`
	Message string `json:"message"`
	Text    string `json:"text"`
	Body    string `json:"body"`

	CreatedAt      any `json:"createdAt"`
	CreatedAtSnake any `json:"created_at"`
	Timestamp      any `json:"timestamp"`
	SentAt         any `json:"sentAt"`
	Date           any `json:"date"`

	Status string `json:"status"`
	IsRead *bool  `json:"isRead"`
	Read   *bool  `json:"read"`
}

// Message normalizes one message record. A bare string is taken as the
// message text, as some thread previews carry only that.
func Message(raw any) model.Message {
	if s, ok := raw.(string); ok {
		return model.Message{ID: fallbackID(raw), Content: s}
	}
	var rec messageRecord
	if !decode(raw, &rec) {
		return model.Message{ID: fallbackID(raw)}
	}
	m := model.Message{
		ID:         first(rec.ID, rec.UnderID, rec.MessageID, rec.MessageID2, rec.UUID),
		SenderID:   first(rec.SenderID, rec.SenderSnake, idOf(rec.From), rec.FromUserID, rec.UserID, idOf(rec.Sender)),
		ReceiverID: first(rec.ReceiverID, rec.ReceiverSnake, idOf(rec.To), rec.ToUserID, rec.RecipientID, idOf(rec.Receiver)),
		Content:    firstText(rec.Content, rec.Message, rec.Text, rec.Body),
		CreatedAt:  firstTime(rec.CreatedAt, rec.CreatedAtSnake, rec.Timestamp, rec.SentAt, rec.Date),
		Status:     status(rec.Status),
	}
	if m.Status == "" {
		for _, v := range []*bool{rec.IsRead, rec.Read} {
			if v != nil && *v {
				m.Status = model.StatusRead
				break
			}
		}
	}
	if m.ID == "" {
		m.ID = fallbackID(raw)
	}
	return m
}

// firstText is first without trimming: message bodies keep their whitespace.
func firstText(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func status(s string) model.MessageStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent":
		return model.StatusSent
	case "delivered", "received":
		return model.StatusDelivered
	case "read", "seen":
		return model.StatusRead
	}
	return ""
}

type threadRecord struct {
	ID             string `json:"id"`
	UnderID        string `json:"_id"`
	ThreadID       string `json:"threadId"`
	ThreadIDSnake  string `json:"thread_id"`
	ConversationID string `json:"conversationId"`

	Participants []any `json:"participants"`
	Users        []any `json:"users"`
	Members      []any `json:"members"`
	OtherUser    any   `json:"otherUser"`
	User         any   `json:"user"`
	Partner      any   `json:"partner"`

	LastMessage      any `json:"lastMessage"`
	LastMessageSnake any `json:"last_message"`

	UnreadCount      int `json:"unreadCount"`
	UnreadCountSnake int `json:"unread_count"`
	Unread           int `json:"unread"`

	UpdatedAt          any `json:"updatedAt"`
	UpdatedAtSnake     any `json:"updated_at"`
	LastMessageAt      any `json:"lastMessageAt"`
	LastMessageAtSnake any `json:"last_message_at"`
}

// Thread normalizes one conversation summary.
func Thread(raw any) model.Thread {
	var rec threadRecord
	if !decode(raw, &rec) {
		return model.Thread{ID: first(idOf(raw), fallbackID(raw))}
	}
	t := model.Thread{
		ID: first(rec.ID, rec.UnderID, rec.ThreadID, rec.ThreadIDSnake, rec.ConversationID),
	}

	people := rec.Participants
	if len(people) == 0 {
		people = rec.Users
	}
	if len(people) == 0 {
		people = rec.Members
	}
	if len(people) == 0 {
		if single := firstAny(rec.OtherUser, rec.Partner, rec.User); single != nil {
			people = []any{single}
		}
	}
	for _, p := range people {
		t.Participants = append(t.Participants, Participant(p))
	}

	if lm := firstAny(rec.LastMessage, rec.LastMessageSnake); lm != nil {
		msg := Message(lm)
		t.LastMessage = &msg
	}

	t.UnreadCount = firstPositive(rec.UnreadCount, rec.UnreadCountSnake, rec.Unread)

	t.UpdatedAt = firstTime(rec.UpdatedAt, rec.UpdatedAtSnake, rec.LastMessageAt, rec.LastMessageAtSnake)
	if t.UpdatedAt.IsZero() && t.LastMessage != nil {
		t.UpdatedAt = t.LastMessage.CreatedAt
	}
	if t.ID == "" {
		t.ID = fallbackID(raw)
	}
	return t
}

// firstPositive returns the first positive count. Negative counts clamp to 0.
func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// Threads normalizes a conversation list response. Accepted shapes are a bare
// array or an object carrying the array under threads, conversations, items
// or data.
func Threads(raw any) []model.Thread {
	list := listOf(raw, "threads", "conversations", "items")
	out := make([]model.Thread, 0, len(list))
	for _, item := range list {
		out = append(out, Thread(item))
	}
	return out
}

// Messages normalizes a message page response. Accepted shapes are a bare
// array or an object carrying the array under messages, items or data.
func Messages(raw any) []model.Message {
	list := listOf(raw, "messages", "items")
	out := make([]model.Message, 0, len(list))
	for _, item := range list {
		out = append(out, Message(item))
	}
	return out
}

// TypingUserIDs extracts the ids of users currently typing.
func TypingUserIDs(raw any) []string {
	list := listOf(raw, "typingUserIds", "typing_user_ids", "userIds", "users", "typing")
	out := make([]string, 0, len(list))
	for _, item := range list {
		if id := idOf(item); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// SentMessage extracts the confirmed message from a send response. The
// response may be the message itself or wrap it under message or data.
func SentMessage(raw any) (model.Message, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return model.Message{}, false
	}
	for _, key := range []string{"message", "data"} {
		if inner, ok := lookup(m, key); ok {
			if im, ok := inner.(map[string]any); ok {
				return SentMessage(im)
			}
		}
	}
	var rec messageRecord
	decode(m, &rec)
	id := first(rec.ID, rec.UnderID, rec.MessageID, rec.MessageID2, rec.UUID)
	if id == "" {
		return model.Message{}, false
	}
	return Message(m), true
}
