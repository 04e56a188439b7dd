package outbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/flash"
	"github.com/tribalmingle/mobileapp-sub000/internal/identity"
	"github.com/tribalmingle/mobileapp-sub000/internal/model"
)

// mockTransport records calls and returns configurable results.
type mockTransport struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
	// reply builds the response for a call; defaults to {"id": "m-<n>"}.
	reply func(n int, text string) any
	// during runs while the call is in flight.
	during func()
}

type sendCall struct {
	ReceiverID string
	Text       string
}

func (m *mockTransport) SendMessage(_ context.Context, receiverID, text string) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sendCall{ReceiverID: receiverID, Text: text})
	n := len(m.calls)
	err, reply, during := m.err, m.reply, m.during
	m.mu.Unlock()
	if during != nil {
		during()
	}
	if err != nil {
		return nil, err
	}
	if reply != nil {
		return reply(n, text), nil
	}
	return map[string]any{"id": fmt.Sprintf("m-%d", n), "content": text}, nil
}

// memTimeline is a minimal Timeline over a slice.
type memTimeline struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (t *memTimeline) InsertPending(msg model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, msg)
}

func (t *memTimeline) ConfirmPending(localID string, confirmed model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.msgs[:0]
	present := false
	for _, m := range t.msgs {
		if m.ID == localID {
			continue
		}
		if m.ID == confirmed.ID {
			present = true
		}
		out = append(out, m)
	}
	if !present {
		out = append(out, confirmed)
	}
	t.msgs = out
}

func (t *memTimeline) RemovePending(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.msgs[:0]
	for _, m := range t.msgs {
		if m.ID != localID {
			out = append(out, m)
		}
	}
	t.msgs = out
}

func (t *memTimeline) snapshot() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Message(nil), t.msgs...)
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newSender(tr Transport, tl Timeline, b *bus.Bus, fl *flash.Model) *Sender {
	return NewSender(tr, tl, identity.Static("me"), "peer", "t1", b, fl, nil).
		WithClock(func() time.Time { return t0 })
}

func TestSendConfirmsExactlyOnce(t *testing.T) {
	tr := &mockTransport{reply: func(int, string) any {
		return map[string]any{"message": map[string]any{"_id": "m-42", "content": "hi"}}
	}}
	tl := &memTimeline{msgs: []model.Message{{ID: "m-1", CreatedAt: t0.Add(-time.Minute)}}}
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindMessageAck, 4)
	defer unsub()

	cleared := false
	var pendingSeen bool
	tr.during = func() {
		for _, m := range tl.snapshot() {
			if m.Pending && model.IsLocalID(m.ID) && m.Content == "hi" {
				pendingSeen = true
			}
		}
	}
	s := newSender(tr, tl, b, nil).OnAccepted(func() { cleared = true })

	msg, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !pendingSeen {
		t.Error("no pending message visible while the send was in flight")
	}
	if !cleared {
		t.Error("compose input not cleared")
	}
	if msg.ID != "m-42" || msg.Pending || !msg.CreatedAt.Equal(t0) || msg.SenderID != "me" {
		t.Errorf("confirmed = %+v", msg)
	}

	count := 0
	for _, m := range tl.snapshot() {
		if m.ID == "m-42" {
			count++
		}
		if model.IsLocalID(m.ID) {
			t.Errorf("local residue %q", m.ID)
		}
	}
	if count != 1 {
		t.Errorf("m-42 appears %d times, want 1", count)
	}
	if len(tr.calls) != 1 || tr.calls[0] != (sendCall{ReceiverID: "peer", Text: "hi"}) {
		t.Errorf("calls = %+v", tr.calls)
	}

	select {
	case evt := <-ch:
		p := evt.Payload.(map[string]string)
		if p["message_id"] != "m-42" || evt.ThreadID != "t1" {
			t.Errorf("ack = %+v", evt)
		}
	default:
		t.Fatal("no send_ack event")
	}
}

func TestSendFailureRollsBack(t *testing.T) {
	tr := &mockTransport{err: errors.New("network error")}
	tl := &memTimeline{msgs: []model.Message{{ID: "m-1"}, {ID: "m-2"}}}
	before := fmt.Sprint(tl.snapshot())
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindMessageFailed, 4)
	defer unsub()
	fl := flash.New(4 * time.Second).WithClock(func() time.Time { return t0 })

	cleared := false
	s := newSender(tr, tl, b, fl).OnAccepted(func() { cleared = true })
	if _, err := s.Send(context.Background(), "hello"); err == nil {
		t.Fatal("Send error = nil, want failure")
	}
	if after := fmt.Sprint(tl.snapshot()); after != before {
		t.Errorf("timeline after rollback = %s, want %s", after, before)
	}
	if !cleared {
		t.Error("input restored; it should stay cleared")
	}
	if n := fl.Current(); n == nil || n.Level != flash.Err {
		t.Errorf("notice = %+v, want error", n)
	}
	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMessageFailed {
			t.Errorf("event kind = %q", evt.Kind)
		}
	default:
		t.Fatal("no send_failed event")
	}
}

func TestSendRejectsEmpty(t *testing.T) {
	tr := &mockTransport{}
	tl := &memTimeline{}
	s := newSender(tr, tl, nil, nil)
	for _, in := range []string{"", "   ", "\n\t"} {
		if _, err := s.Send(context.Background(), in); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) = %v, want ErrEmptyMessage", in, err)
		}
	}
	if len(tr.calls) != 0 || len(tl.snapshot()) != 0 {
		t.Errorf("empty send touched network (%d) or timeline (%d)", len(tr.calls), len(tl.snapshot()))
	}
}

func TestConcurrentSendsAreIndependent(t *testing.T) {
	tr := &mockTransport{reply: func(_ int, text string) any {
		return map[string]any{"id": "srv-" + text}
	}}
	tl := &memTimeline{}
	s := newSender(tr, tl, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Send(context.Background(), fmt.Sprintf("msg%d", i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	var got []string
	for _, m := range tl.snapshot() {
		got = append(got, m.ID)
	}
	sort.Strings(got)
	if len(got) != 10 {
		t.Fatalf("got %d messages, want 10: %v", len(got), got)
	}
	for _, id := range got {
		if !strings.HasPrefix(id, "srv-") {
			t.Errorf("unexpected id %q", id)
		}
	}
}

func TestSendWithoutServerIDLeavesNoResidue(t *testing.T) {
	tr := &mockTransport{reply: func(int, string) any { return map[string]any{"success": true} }}
	tl := &memTimeline{}
	msg, err := newSender(tr, tl, nil, nil).Send(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "hi" || msg.Pending {
		t.Errorf("msg = %+v", msg)
	}
	if n := len(tl.snapshot()); n != 0 {
		t.Errorf("timeline holds %d entries, want 0 until the next poll", n)
	}
}

func TestNewLocalIDIsUnique(t *testing.T) {
	a, b := NewLocalID(t0), NewLocalID(t0)
	if a == b {
		t.Errorf("ids collide: %q", a)
	}
	if !model.IsLocalID(a) {
		t.Errorf("%q lacks local prefix", a)
	}
}
