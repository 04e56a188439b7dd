package normalize

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tribalmingle/mobileapp-sub000/internal/model"
)

func parse(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func TestMessageFieldVariants(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   string
	}{
		{"camel", `{"id":"m1","senderId":"u1","receiverId":"u2","content":"hi","createdAt":"2024-05-01T12:00:00Z"}`},
		{"snake", `{"_id":"m1","sender_id":"u1","receiver_id":"u2","message":"hi","created_at":"2024-05-01T12:00:00.000Z"}`},
		{"nested sender", `{"messageId":"m1","sender":{"_id":"u1"},"to":"u2","text":"hi","timestamp":1714564800000}`},
		{"unix seconds", `{"message_id":"m1","from":"u1","recipientId":"u2","body":"hi","sentAt":1714564800}`},
		{"numeric ids", `{"id":"m1","senderId":"u1","toUserId":"u2","content":"hi","date":"1714564800"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Message(parse(t, tt.in))
			if m.ID != "m1" || m.SenderID != "u1" || m.ReceiverID != "u2" || m.Content != "hi" {
				t.Errorf("Message = %+v", m)
			}
			if !m.CreatedAt.Equal(want) {
				t.Errorf("CreatedAt = %v, want %v", m.CreatedAt, want)
			}
		})
	}
}

func TestMessageNumericIDKeepsDigits(t *testing.T) {
	m := Message(parse(t, `{"id":12345678901234,"senderId":42}`))
	if m.ID != "12345678901234" {
		t.Errorf("ID = %q", m.ID)
	}
	if m.SenderID != "42" {
		t.Errorf("SenderID = %q", m.SenderID)
	}
}

func TestMessageStatus(t *testing.T) {
	tests := []struct {
		in   string
		want model.MessageStatus
	}{
		{`{"id":"a","status":"READ"}`, model.StatusRead},
		{`{"id":"a","status":"seen"}`, model.StatusRead},
		{`{"id":"a","status":"delivered"}`, model.StatusDelivered},
		{`{"id":"a","status":"exploded"}`, ""},
		{`{"id":"a","isRead":true}`, model.StatusRead},
	}
	for _, tt := range tests {
		if got := Message(parse(t, tt.in)).Status; got != tt.want {
			t.Errorf("Message(%s).Status = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMessageMissingIDIsDeterministic(t *testing.T) {
	in := `{"senderId":"u1","content":"hello","createdAt":"2024-05-01T12:00:00Z"}`
	a := Message(parse(t, in))
	b := Message(parse(t, in))
	if a.ID == "" || a.ID != b.ID {
		t.Errorf("ids %q and %q, want equal and non-empty", a.ID, b.ID)
	}
	if !strings.HasPrefix(a.ID, "gen-") {
		t.Errorf("ID = %q, want gen- prefix", a.ID)
	}
	other := Message(parse(t, `{"senderId":"u1","content":"bye"}`))
	if other.ID == a.ID {
		t.Errorf("distinct payloads share id %q", a.ID)
	}
}

func TestMalformedInputNeverPanics(t *testing.T) {
	inputs := []any{
		nil,
		42,
		[]any{1, 2},
		map[string]any{"id": map[string]any{"nested": true}, "createdAt": []any{"x"}},
		map[string]any{"participants": "nope", "unreadCount": "many"},
		map[string]any{"sender": 3.5, "content": map[string]any{}},
	}
	for _, in := range inputs {
		_ = Message(in)
		_ = Thread(in)
		_ = Participant(in)
		_ = Threads(in)
		_ = Messages(in)
		_ = TypingUserIDs(in)
		_, _ = SentMessage(in)
	}
}

func TestParticipantVariants(t *testing.T) {
	tests := []struct {
		name, in       string
		id, name2, url string
	}{
		{"camel", `{"id":"u1","name":"Ada","photoUrl":"https://x/a.jpg"}`, "u1", "Ada", "https://x/a.jpg"},
		{"photos array", `{"_id":"u1","firstName":"Ada","lastName":"L","photos":[{"url":"https://x/p.jpg"}]}`, "u1", "Ada L", "https://x/p.jpg"},
		{"email id", `{"email":"ada@example.com","avatar":"https://x/av.png"}`, "ada@example.com", "", "https://x/av.png"},
		{"wrapped user", `{"user":{"userId":"u9","displayName":"Bo"}}`, "u9", "Bo", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Participant(parse(t, tt.in))
			if p.ID != tt.id || p.Name != tt.name2 || p.PhotoURL != tt.url {
				t.Errorf("Participant = %+v", p)
			}
		})
	}
}

func TestParticipantPresence(t *testing.T) {
	p := Participant(parse(t, `{"id":"u1","is_online":true,"lastSeen":"2024-05-01T12:00:00Z"}`))
	if p.IsOnline == nil || !*p.IsOnline {
		t.Errorf("IsOnline = %v, want true", p.IsOnline)
	}
	if p.LastActiveAt == nil {
		t.Fatal("LastActiveAt = nil")
	}
	absent := Participant(parse(t, `{"id":"u2"}`))
	if absent.IsOnline != nil || absent.LastActiveAt != nil {
		t.Errorf("absent presence = %+v", absent)
	}
}

func TestThreadVariants(t *testing.T) {
	tests := []struct {
		name, in string
	}{
		{"participants", `{"id":"t1","participants":[{"id":"u2"}],"unreadCount":3,"updatedAt":"2024-05-01T12:00:00Z","lastMessage":{"id":"m1","content":"yo"}}`},
		{"other user", `{"conversationId":"t1","otherUser":{"_id":"u2"},"unread_count":3,"lastMessageAt":1714564800,"last_message":{"_id":"m1","text":"yo"}}`},
		{"users", `{"_id":"t1","users":["u2"],"unread":3,"lastMessage":{"id":"m1","message":"yo","createdAt":"2024-05-01T12:00:00Z"}}`},
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := Thread(parse(t, tt.in))
			if th.ID != "t1" || th.UnreadCount != 3 {
				t.Errorf("Thread = %+v", th)
			}
			if th.Peer().ID != "u2" {
				t.Errorf("Peer = %+v", th.Peer())
			}
			if th.LastMessage == nil || th.LastMessage.Content != "yo" {
				t.Errorf("LastMessage = %+v", th.LastMessage)
			}
			if !th.UpdatedAt.Equal(want) {
				t.Errorf("UpdatedAt = %v, want %v", th.UpdatedAt, want)
			}
		})
	}
}

func TestThreadNegativeUnreadClamps(t *testing.T) {
	if got := Thread(parse(t, `{"id":"t","unreadCount":-4}`)).UnreadCount; got != 0 {
		t.Errorf("UnreadCount = %d, want 0", got)
	}
}

func TestListWrappers(t *testing.T) {
	threadShapes := []string{
		`[{"id":"a"},{"id":"b"}]`,
		`{"threads":[{"id":"a"},{"id":"b"}]}`,
		`{"conversations":[{"id":"a"},{"id":"b"}]}`,
		`{"data":[{"id":"a"},{"id":"b"}]}`,
		`{"data":{"conversations":[{"id":"a"},{"id":"b"}]}}`,
	}
	for _, s := range threadShapes {
		if got := Threads(parse(t, s)); len(got) != 2 || got[1].ID != "b" {
			t.Errorf("Threads(%s) = %+v", s, got)
		}
	}
	messageShapes := []string{
		`[{"id":"a"}]`,
		`{"messages":[{"id":"a"}]}`,
		`{"data":[{"id":"a"}]}`,
		`{"items":[{"id":"a"}]}`,
	}
	for _, s := range messageShapes {
		if got := Messages(parse(t, s)); len(got) != 1 || got[0].ID != "a" {
			t.Errorf("Messages(%s) = %+v", s, got)
		}
	}
	if got := Threads(parse(t, `{"unexpected":true}`)); len(got) != 0 {
		t.Errorf("Threads(unexpected) = %+v, want empty", got)
	}
}

func TestTypingUserIDs(t *testing.T) {
	tests := []string{
		`{"typingUserIds":["u1","u2"]}`,
		`{"typing_user_ids":["u1","u2"]}`,
		`{"userIds":["u1",{"id":"u2"}]}`,
		`["u1","u2"]`,
	}
	for _, s := range tests {
		got := TypingUserIDs(parse(t, s))
		if len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
			t.Errorf("TypingUserIDs(%s) = %v", s, got)
		}
	}
}

func TestSentMessage(t *testing.T) {
	tests := []string{
		`{"id":"m-42","content":"hi"}`,
		`{"message":{"_id":"m-42","content":"hi"}}`,
		`{"success":true,"data":{"messageId":"m-42","message":"hi"}}`,
	}
	for _, s := range tests {
		m, ok := SentMessage(parse(t, s))
		if !ok || m.ID != "m-42" || m.Content != "hi" {
			t.Errorf("SentMessage(%s) = %+v, %v", s, m, ok)
		}
	}
	if _, ok := SentMessage(parse(t, `{"success":true}`)); ok {
		t.Error("SentMessage without id reported ok")
	}
}
