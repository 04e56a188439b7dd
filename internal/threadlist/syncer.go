// Package threadlist keeps the conversation list fresh by polling the server
// and reacting to push notifications.
package threadlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/flash"
	"github.com/tribalmingle/mobileapp-sub000/internal/logging"
	"github.com/tribalmingle/mobileapp-sub000/internal/model"
	"github.com/tribalmingle/mobileapp-sub000/internal/normalize"
	"github.com/tribalmingle/mobileapp-sub000/internal/notify"
	"github.com/tribalmingle/mobileapp-sub000/internal/schedule"
	"github.com/tribalmingle/mobileapp-sub000/internal/unread"
)

// ErrInFlight is returned by Refresh while another refresh is running.
var ErrInFlight = errors.New("thread list refresh already in flight")

// Fetcher loads the raw conversation list.
type Fetcher interface {
	ListConversations(ctx context.Context) (any, error)
}

// Syncer owns the conversation list.
type Syncer struct {
	fetcher  Fetcher
	unread   *unread.Store
	sched    schedule.Scheduler
	hook     *notify.Hook
	bus      *bus.Bus
	flash    *flash.Model
	logger   *zap.Logger
	interval time.Duration

	mu      sync.RWMutex
	threads []model.Thread
	loaded  bool
	running bool
	// gen changes on every Stop; a refresh started under an older generation
	// must not apply its result. inFlight holds the generation of the running
	// refresh, if any.
	gen        uint64
	inFlight   *uint64
	ctx        context.Context
	stopTick   func()
	unregister func()
	initial    schedule.Timer
}

// New creates a thread list syncer. hook, bus and flash may be nil.
func New(f Fetcher, store *unread.Store, sched schedule.Scheduler, hook *notify.Hook, b *bus.Bus, fl *flash.Model, logger *zap.Logger, interval time.Duration) *Syncer {
	logger = logging.OrNop(logger)
	return &Syncer{
		fetcher:  f,
		unread:   store,
		sched:    sched,
		hook:     hook,
		bus:      b,
		flash:    fl,
		logger:   logger,
		interval: interval,
	}
}

// Start refreshes once right away, then every interval and on every
// new-message push. Calling Start on a running syncer does nothing.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx = ctx
	s.initial = s.sched.AfterFunc(0, s.tick)
	s.stopTick = s.sched.Every(s.interval, s.tick)
	if s.hook != nil {
		s.unregister = s.hook.Register("", func(notify.Push) { s.tick() })
	}
}

// Stop cancels polling and push delivery. A refresh still in flight
// completes but its result is discarded.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	initial, stopTick, unregister := s.initial, s.stopTick, s.unregister
	s.initial, s.stopTick, s.unregister = nil, nil, nil
	s.mu.Unlock()

	initial.Stop()
	stopTick()
	if unregister != nil {
		unregister()
	}
}

func (s *Syncer) tick() {
	s.mu.RLock()
	ctx, running := s.ctx, s.running
	s.mu.RUnlock()
	if !running {
		return
	}
	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrInFlight) {
		s.logger.Debug("scheduled thread list refresh failed", zap.Error(err))
	}
}

// Refresh fetches the conversation list and replaces the local copy. On
// failure the list and unread counts are left as they were. The first
// successful refresh sets the unread baseline; later ones merge into it.
func (s *Syncer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight != nil && *s.inFlight == s.gen {
		s.mu.Unlock()
		return ErrInFlight
	}
	gen := s.gen
	flight := &gen
	s.inFlight = flight
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.inFlight == flight {
			s.inFlight = nil
		}
		s.mu.Unlock()
	}()

	raw, err := s.fetcher.ListConversations(ctx)
	if err != nil {
		if s.current(gen) {
			s.logger.Warn("failed to refresh conversations", zap.Error(err))
			if s.flash != nil {
				s.flash.Warn("Couldn't refresh conversations")
			}
		}
		return fmt.Errorf("list conversations: %w", err)
	}

	threads := normalize.Threads(raw)
	model.SortThreads(threads)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding thread list from stopped syncer")
		return nil
	}
	s.threads = threads
	// Stop waits for the lock, so the store is never written after teardown.
	if s.unread != nil {
		if s.loaded {
			s.unread.SyncFromServer(unreadEntries(threads))
		} else {
			s.unread.SyncBaseline(unreadEntries(threads))
		}
	}
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug("conversations refreshed", zap.Int("count", len(threads)))
	if s.bus != nil {
		s.bus.Publish(bus.Event{Kind: bus.KindThreadsUpdated, Payload: len(threads)})
	}
	return nil
}

func unreadEntries(threads []model.Thread) []unread.Entry {
	entries := make([]unread.Entry, 0, len(threads))
	for _, t := range threads {
		e := unread.Entry{ThreadID: t.ID, Count: t.UnreadCount, LastMessageAt: t.UpdatedAt}
		if t.LastMessage != nil && !t.LastMessage.CreatedAt.IsZero() {
			e.LastMessageAt = t.LastMessage.CreatedAt
		}
		entries = append(entries, e)
	}
	return entries
}

func (s *Syncer) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen == s.gen
}

// Threads returns a snapshot of the list, most recently active first.
func (s *Syncer) Threads() []model.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Thread(nil), s.threads...)
}

// Thread looks up a listed thread by id.
func (s *Syncer) Thread(id string) (model.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.threads {
		if model.SameID(t.ID, id) {
			return t, true
		}
	}
	return model.Thread{}, false
}

// Badge returns the unread count to display for a thread.
func (s *Syncer) Badge(threadID string) int {
	if s.unread == nil {
		return 0
	}
	return s.unread.Get(threadID)
}

// TotalUnread returns the sum of all thread badges.
func (s *Syncer) TotalUnread() int {
	if s.unread == nil {
		return 0
	}
	return s.unread.Total()
}
