package typing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tribalmingle/mobileapp-sub000/internal/identity"
	"github.com/tribalmingle/mobileapp-sub000/internal/schedule"
	"github.com/tribalmingle/mobileapp-sub000/internal/task"
)

type fakeSignaler struct {
	mu      sync.Mutex
	signals []bool
	typing  any
	pollErr error
	polls   int
	sendErr error
}

func (f *fakeSignaler) SetTyping(_ context.Context, _ string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, isTyping)
	return f.sendErr
}

func (f *fakeSignaler) TypingUsers(context.Context, string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.typing, f.pollErr
}

func (f *fakeSignaler) got() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.signals {
		if s {
			starts++
		} else {
			stops++
		}
	}
	return starts, stops
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newChannel(threadID string) (*Channel, *fakeSignaler, *schedule.Fake, *task.Inline) {
	sig := &fakeSignaler{}
	sched := schedule.NewFake(t0)
	runner := &task.Inline{}
	c := New(sig, runner, sched, identity.Static("me"), nil, threadID, 1500*time.Millisecond, 2*time.Second)
	return c, sig, sched, runner
}

func TestDebounceSendsOneStartAndOneStop(t *testing.T) {
	c, sig, sched, _ := newChannel("t1")

	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		c.OnInputChange(text)
		sched.Advance(400 * time.Millisecond)
	}
	if starts, stops := sig.got(); starts != 1 || stops != 0 {
		t.Fatalf("mid-burst starts=%d stops=%d, want 1 0", starts, stops)
	}
	if !c.Typing() {
		t.Error("Typing = false mid-burst")
	}

	sched.Advance(1500 * time.Millisecond)
	if starts, stops := sig.got(); starts != 1 || stops != 1 {
		t.Errorf("after burst starts=%d stops=%d, want 1 1", starts, stops)
	}
	if c.Typing() {
		t.Error("Typing = true after debounce")
	}
	if c.Compose() != "hello" {
		t.Errorf("Compose = %q", c.Compose())
	}

	// A new burst starts fresh.
	c.OnInputChange("hello!")
	sched.Advance(2 * time.Second)
	if starts, stops := sig.got(); starts != 2 || stops != 2 {
		t.Errorf("second burst starts=%d stops=%d, want 2 2", starts, stops)
	}
}

func TestClearingInputStopsImmediately(t *testing.T) {
	c, sig, sched, _ := newChannel("t1")
	c.OnInputChange("hi")
	c.ClearCompose()
	if starts, stops := sig.got(); starts != 1 || stops != 1 {
		t.Fatalf("starts=%d stops=%d, want 1 1", starts, stops)
	}
	sched.Advance(5 * time.Second)
	if _, stops := sig.got(); stops != 1 {
		t.Errorf("stale debounce sent extra stop; stops=%d", stops)
	}
	if c.Compose() != "" {
		t.Errorf("Compose = %q, want empty", c.Compose())
	}
}

func TestLeaveSendsFinalStop(t *testing.T) {
	c, sig, sched, _ := newChannel("t1")
	c.Start()
	c.OnInputChange("typing")
	c.Leave()
	c.Leave()
	if starts, stops := sig.got(); starts != 1 || stops != 1 {
		t.Errorf("starts=%d stops=%d, want 1 1", starts, stops)
	}
	if sched.Active() != 0 {
		t.Errorf("active timers = %d after leave", sched.Active())
	}
	c.OnInputChange("more")
	if starts, _ := sig.got(); starts != 1 {
		t.Error("input after leave signalled start")
	}
}

func TestLeaveWithoutTypingSendsNothing(t *testing.T) {
	c, sig, _, _ := newChannel("t1")
	c.Leave()
	if starts, stops := sig.got(); starts+stops != 0 {
		t.Errorf("signals = %d, want 0", starts+stops)
	}
}

func TestSignalErrorsAreSwallowed(t *testing.T) {
	c, sig, _, runner := newChannel("t1")
	sig.sendErr = errors.New("offline")
	c.OnInputChange("x")
	c.ClearCompose()
	if got := len(runner.Errors()); got != 2 {
		t.Errorf("swallowed errors = %d, want 2", got)
	}
	names := runner.Names()
	if len(names) != 2 || names[0] != "typing-start" || names[1] != "typing-stop" {
		t.Errorf("task names = %v", names)
	}
}

func TestPeerTypingExcludesSelf(t *testing.T) {
	c, sig, sched, _ := newChannel("t1")
	c.Start()

	sig.typing = map[string]any{"typingUserIds": []any{"ME"}}
	sched.Advance(2 * time.Second)
	if c.PeerTyping() {
		t.Error("PeerTyping = true with only self typing")
	}

	sig.typing = map[string]any{"typingUserIds": []any{"me", "peer"}}
	sched.Advance(2 * time.Second)
	if !c.PeerTyping() {
		t.Error("PeerTyping = false with peer typing")
	}
	if peers := c.Peers(); len(peers) != 1 || peers[0] != "peer" {
		t.Errorf("Peers = %v", peers)
	}

	sig.pollErr = errors.New("flaky")
	sched.Advance(2 * time.Second)
	if !c.PeerTyping() {
		t.Error("poll failure cleared peer state")
	}
}

func TestDirectThreadIsInert(t *testing.T) {
	c, sig, sched, _ := newChannel("")
	c.Start()
	c.OnInputChange("hi")
	sched.Advance(10 * time.Second)
	if starts, stops := sig.got(); starts+stops != 0 || sig.polls != 0 {
		t.Errorf("direct thread signalled %d times, polled %d", starts+stops, sig.polls)
	}
}

func TestPeerChangesAreSignalled(t *testing.T) {
	c, sig, sched, _ := newChannel("t1")
	c.Start()

	sig.typing = map[string]any{"typingUserIds": []any{"peer"}}
	sched.Advance(2 * time.Second)
	select {
	case <-c.Changes():
	default:
		t.Fatal("peer starting to type not signalled")
	}

	sched.Advance(2 * time.Second)
	select {
	case <-c.Changes():
		t.Fatal("unchanged peers signalled")
	default:
	}

	sig.typing = map[string]any{"typingUserIds": []any{}}
	sched.Advance(2 * time.Second)
	select {
	case <-c.Changes():
	default:
		t.Fatal("peer stopping not signalled")
	}
}
