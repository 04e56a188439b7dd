package threadlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/flash"
	"github.com/tribalmingle/mobileapp-sub000/internal/notify"
	"github.com/tribalmingle/mobileapp-sub000/internal/schedule"
	"github.com/tribalmingle/mobileapp-sub000/internal/unread"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	raw   any
	err   error
	// gate, when set, blocks each call until a value is received.
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) ListConversations(ctx context.Context) (any, error) {
	f.mu.Lock()
	f.calls++
	raw, err, gate, started := f.raw, f.err, f.gate, f.started
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return raw, err
}

func (f *fakeFetcher) set(raw any, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw, f.err = raw, err
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func conversations(items ...map[string]any) any {
	list := make([]any, len(items))
	for i, it := range items {
		list[i] = it
	}
	return map[string]any{"conversations": list}
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	fetcher *fakeFetcher
	store   *unread.Store
	sched   *schedule.Fake
	hook    *notify.Hook
	bus     *bus.Bus
	flash   *flash.Model
	syncer  *Syncer
}

func newHarness() *harness {
	h := &harness{
		fetcher: &fakeFetcher{},
		sched:   schedule.NewFake(t0),
		bus:     bus.New(),
	}
	h.store = unread.New(nil, nil, nil, nil).WithClock(h.sched.Now)
	h.hook = notify.NewHook(h.bus, nil)
	h.flash = flash.New(4 * time.Second).WithClock(h.sched.Now)
	h.syncer = New(h.fetcher, h.store, h.sched, h.hook, h.bus, h.flash, nil, 8*time.Second)
	return h
}

func TestRefreshSortsAndSyncsUnread(t *testing.T) {
	h := newHarness()
	h.fetcher.set(conversations(
		map[string]any{"id": "old", "updatedAt": "2024-05-01T10:00:00Z", "unreadCount": 1},
		map[string]any{"id": "new", "updatedAt": "2024-05-01T11:00:00Z", "unreadCount": 4},
	), nil)

	if err := h.syncer.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	threads := h.syncer.Threads()
	if len(threads) != 2 || threads[0].ID != "new" || threads[1].ID != "old" {
		t.Fatalf("threads = %+v, want [new old]", threads)
	}
	if got := h.syncer.Badge("new"); got != 4 {
		t.Errorf("Badge(new) = %d, want 4", got)
	}
	if got := h.syncer.TotalUnread(); got != 5 {
		t.Errorf("TotalUnread = %d, want 5", got)
	}
	if _, ok := h.syncer.Thread("OLD"); !ok {
		t.Error("Thread(OLD) not found")
	}
}

func TestRefreshFailureKeepsListAndRaisesNotice(t *testing.T) {
	h := newHarness()
	h.fetcher.set(conversations(map[string]any{"id": "a", "unreadCount": 2}), nil)
	if err := h.syncer.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.fetcher.set(nil, errors.New("boom"))
	if err := h.syncer.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh error = nil, want failure")
	}
	if threads := h.syncer.Threads(); len(threads) != 1 || threads[0].ID != "a" {
		t.Errorf("threads after failure = %+v", threads)
	}
	if got := h.syncer.Badge("a"); got != 2 {
		t.Errorf("Badge after failure = %d, want 2", got)
	}
	n := h.flash.Current()
	if n == nil || n.Level != flash.Warn {
		t.Fatalf("notice = %+v, want warning", n)
	}
	h.sched.Advance(5 * time.Second)
	if n := h.flash.Current(); n != nil {
		t.Errorf("notice after ttl = %+v, want nil", n)
	}
}

func TestRefreshOverlapIsNoOp(t *testing.T) {
	h := newHarness()
	h.fetcher.gate = make(chan struct{})
	h.fetcher.started = make(chan struct{}, 1)
	h.fetcher.set(conversations(), nil)

	done := make(chan error, 1)
	go func() { done <- h.syncer.Refresh(context.Background()) }()
	<-h.fetcher.started

	if err := h.syncer.Refresh(context.Background()); !errors.Is(err, ErrInFlight) {
		t.Errorf("overlapping Refresh = %v, want ErrInFlight", err)
	}
	close(h.fetcher.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := h.fetcher.count(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestLateResponseAfterStopIsDiscarded(t *testing.T) {
	h := newHarness()
	h.fetcher.gate = make(chan struct{})
	h.fetcher.started = make(chan struct{}, 1)
	h.fetcher.set(conversations(map[string]any{"id": "a", "unreadCount": 3}), nil)

	h.syncer.Start(context.Background())
	done := make(chan struct{})
	go func() {
		h.sched.Advance(0)
		close(done)
	}()
	<-h.fetcher.started
	h.syncer.Stop()
	close(h.fetcher.gate)
	<-done

	if threads := h.syncer.Threads(); len(threads) != 0 {
		t.Errorf("threads = %+v, want none after stop", threads)
	}
	if got := h.store.Get("a"); got != 0 {
		t.Errorf("unread = %d, want untouched", got)
	}
}

func TestStartPollsUntilStopped(t *testing.T) {
	h := newHarness()
	h.fetcher.set(conversations(), nil)

	h.syncer.Start(context.Background())
	h.sched.Advance(0)
	if got := h.fetcher.count(); got != 1 {
		t.Fatalf("calls after start = %d, want 1", got)
	}
	h.sched.Advance(8 * time.Second)
	h.sched.Advance(8 * time.Second)
	if got := h.fetcher.count(); got != 3 {
		t.Errorf("calls after two intervals = %d, want 3", got)
	}

	h.syncer.Stop()
	h.sched.Advance(time.Minute)
	if got := h.fetcher.count(); got != 3 {
		t.Errorf("calls after stop = %d, want 3", got)
	}
	if got := h.sched.Active(); got != 0 {
		t.Errorf("active timers = %d, want 0", got)
	}
}

func TestPushTriggersRefresh(t *testing.T) {
	h := newHarness()
	h.fetcher.set(conversations(), nil)
	h.syncer.Start(context.Background())
	defer h.syncer.Stop()

	h.hook.Dispatch(notify.Push{Type: notify.TypeMessage, ThreadID: "anything"})
	if got := h.fetcher.count(); got != 1 {
		t.Errorf("calls after push = %d, want 1", got)
	}
}

func TestRefreshPublishesThreadsUpdated(t *testing.T) {
	h := newHarness()
	ch, unsub := h.bus.Subscribe(bus.KindThreadsUpdated, 4)
	defer unsub()
	h.fetcher.set(conversations(map[string]any{"id": "a"}), nil)

	if err := h.syncer.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		if evt.Payload.(int) != 1 {
			t.Errorf("payload = %v, want 1", evt.Payload)
		}
	default:
		t.Fatal("no threads.updated event")
	}
}

func TestMarkReadSurvivesStaleRefresh(t *testing.T) {
	h := newHarness()
	h.fetcher.set(conversations(map[string]any{"id": "T1", "unreadCount": 5, "updatedAt": "2024-05-01T11:00:00Z"}), nil)
	if err := h.syncer.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.store.MarkRead("T1")
	if err := h.syncer.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.syncer.Badge("T1"); got != 0 {
		t.Errorf("Badge = %d, want 0 after stale refresh", got)
	}
}

func TestRestartDuringRefreshRefreshesAgain(t *testing.T) {
	h := newHarness()
	h.fetcher.gate = make(chan struct{})
	h.fetcher.started = make(chan struct{}, 2)
	h.fetcher.set(conversations(map[string]any{"id": "a", "unreadCount": 3}), nil)

	h.syncer.Start(context.Background())
	first := make(chan struct{})
	go func() {
		h.sched.Advance(0)
		close(first)
	}()
	<-h.fetcher.started

	h.syncer.Stop()
	h.syncer.Start(context.Background())
	defer h.syncer.Stop()
	second := make(chan struct{})
	go func() {
		h.sched.Advance(0)
		close(second)
	}()
	select {
	case <-h.fetcher.started:
	case <-time.After(time.Second):
		close(h.fetcher.gate)
		t.Fatal("restarted syncer did not refresh while the old refresh was in flight")
	}

	close(h.fetcher.gate)
	<-first
	<-second

	if got := h.fetcher.count(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
	if threads := h.syncer.Threads(); len(threads) != 1 {
		t.Errorf("threads = %+v, want [a]", threads)
	}
	if got := h.store.Get("a"); got != 3 {
		t.Errorf("unread = %d, want 3", got)
	}
}

func TestFirstRefreshSetsUnreadBaseline(t *testing.T) {
	h := newHarness()
	h.store.SyncFromServer([]unread.Entry{{ThreadID: "gone", Count: 1}, {ThreadID: "a", Count: 2}})
	h.store.MarkRead("a")

	h.fetcher.set(conversations(map[string]any{"id": "a", "unreadCount": 2, "updatedAt": "2024-05-01T11:00:00Z"}), nil)
	if err := h.syncer.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.store.Get("a"); got != 2 {
		t.Errorf("Get(a) after first load = %d, want 2", got)
	}
	if got := h.store.Get("gone"); got != 0 {
		t.Errorf("Get(gone) after first load = %d, want 0", got)
	}

	h.store.MarkRead("a")
	if err := h.syncer.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.store.Get("a"); got != 0 {
		t.Errorf("Get(a) after later refresh = %d, want 0", got)
	}
}
