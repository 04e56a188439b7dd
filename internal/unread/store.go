// Package unread reconciles server-reported unread counts with local
// mark-read actions so a stale server value never resurrects a badge the
// user already cleared.
package unread

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/logging"
	"github.com/tribalmingle/mobileapp-sub000/internal/task"
)

// Remote acknowledges reads on the server.
type Remote interface {
	MarkRead(ctx context.Context, threadID string) error
}

// Entry is one thread's unread state as reported by the server.
type Entry struct {
	ThreadID      string
	Count         int
	LastMessageAt time.Time
}

type entry struct {
	server int
	// lastAt is the newest message time the server reported.
	lastAt time.Time
	// While read is set the thread shows 0 until the server reports a message
	// newer than readAt, the read watermark.
	read   bool
	readAt time.Time
}

func (e *entry) value() int {
	if e.read {
		return 0
	}
	return e.server
}

// Store holds per-thread unread counts. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	remote Remote
	tasks  task.Runner
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// New creates an empty store. bus may be nil.
func New(remote Remote, tasks task.Runner, b *bus.Bus, logger *zap.Logger) *Store {
	logger = logging.OrNop(logger)
	return &Store{
		entries: make(map[string]*entry),
		remote:  remote,
		tasks:   tasks,
		bus:     b,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for read watermarks.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func key(threadID string) string {
	return strings.ToLower(strings.TrimSpace(threadID))
}

// SyncFromServer merges server counts. A thread marked read locally keeps
// showing 0 unless the server reports unread messages newer than the read.
// A server count of 0 clears the watermark.
func (s *Store) SyncFromServer(entries []Entry) {
	var changed []Entry
	s.mu.Lock()
	for _, in := range entries {
		k := key(in.ThreadID)
		if k == "" {
			continue
		}
		count := max(in.Count, 0)
		e, ok := s.entries[k]
		if !ok {
			e = &entry{}
			s.entries[k] = e
		}
		before := e.value()
		e.server = count
		if e.read && (count == 0 || in.LastMessageAt.After(e.readAt)) {
			e.read, e.readAt = false, time.Time{}
		}
		if !in.LastMessageAt.IsZero() {
			e.lastAt = in.LastMessageAt
		}
		if after := e.value(); after != before || !ok {
			changed = append(changed, Entry{ThreadID: in.ThreadID, Count: after})
		}
	}
	s.mu.Unlock()
	s.publish(changed)
}

// SyncBaseline replaces all state with the server's view, discarding local
// overrides. The thread list calls it on its first load.
func (s *Store) SyncBaseline(entries []Entry) {
	next := make(map[string]*entry, len(entries))
	for _, in := range entries {
		if k := key(in.ThreadID); k != "" {
			next[k] = &entry{server: max(in.Count, 0), lastAt: in.LastMessageAt}
		}
	}

	var changed []Entry
	s.mu.Lock()
	for k, e := range s.entries {
		if _, ok := next[k]; !ok && e.value() != 0 {
			changed = append(changed, Entry{ThreadID: k})
		}
	}
	for k, e := range next {
		if old, ok := s.entries[k]; !ok || old.value() != e.value() {
			changed = append(changed, Entry{ThreadID: k, Count: e.value()})
		}
	}
	s.entries = next
	s.mu.Unlock()
	s.publish(changed)
}

// MarkRead zeroes the thread's count immediately and acknowledges the read on
// the server in the background. A failed acknowledgement is only logged. The
// watermark is the newest message time the server reported for the thread,
// or the local clock when none is known.
func (s *Store) MarkRead(threadID string) {
	k := key(threadID)
	if k == "" {
		return
	}
	s.mu.Lock()
	e, ok := s.entries[k]
	if !ok {
		e = &entry{}
		s.entries[k] = e
	}
	before := e.value()
	e.read = true
	e.readAt = e.lastAt
	if e.readAt.IsZero() {
		e.readAt = s.now()
	}
	s.mu.Unlock()

	if before != 0 {
		s.publish([]Entry{{ThreadID: threadID}})
	}
	if s.remote == nil || s.tasks == nil {
		return
	}
	s.tasks.Go("mark-read", func(ctx context.Context) error {
		return s.remote.MarkRead(ctx, threadID)
	})
}

// Get returns the displayed unread count for a thread.
func (s *Store) Get(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[key(threadID)]; ok {
		return e.value()
	}
	return 0
}

// Total sums the displayed counts of every thread.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, e := range s.entries {
		total += e.value()
	}
	return total
}

func (s *Store) publish(changed []Entry) {
	if s.bus == nil {
		return
	}
	for _, c := range changed {
		s.logger.Debug("unread changed", zap.String("thread_id", c.ThreadID), zap.Int("count", c.Count))
		s.bus.Publish(bus.Event{Kind: bus.KindUnreadChanged, ThreadID: c.ThreadID, Payload: c.Count})
	}
}
