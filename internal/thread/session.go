// Package thread keeps one open conversation in sync: the initial page,
// background polling of the newest page, older-page pagination and the
// optimistic entries of in-flight sends.
package thread

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/flash"
	"github.com/tribalmingle/mobileapp-sub000/internal/identity"
	"github.com/tribalmingle/mobileapp-sub000/internal/logging"
	"github.com/tribalmingle/mobileapp-sub000/internal/model"
	"github.com/tribalmingle/mobileapp-sub000/internal/normalize"
	"github.com/tribalmingle/mobileapp-sub000/internal/notify"
	"github.com/tribalmingle/mobileapp-sub000/internal/schedule"
	"github.com/tribalmingle/mobileapp-sub000/internal/status"
	"github.com/tribalmingle/mobileapp-sub000/internal/unread"
)

var (
	// ErrInFlight is returned when the same kind of request is already running.
	ErrInFlight = errors.New("thread request already in flight")
	// ErrNoMore is returned by LoadMore once the oldest page has been loaded.
	ErrNoMore = errors.New("no older messages")
	// ErrClosed is returned by operations on a closed thread.
	ErrClosed = errors.New("thread closed")
)

// DefaultPageSize is the number of messages requested per page.
const DefaultPageSize = 30

// Remote is the server surface a thread needs.
type Remote interface {
	ListMessages(ctx context.Context, threadOrPeerID string, page, limit int) (any, error)
	Report(ctx context.Context, threadID, reason string) error
	Block(ctx context.Context, userID string) error
}

// Options selects the conversation and its timing.
type Options struct {
	// ThreadID names a server-backed thread.
	ThreadID string
	// PeerID names the other user. Without a ThreadID the session is a direct
	// thread keyed by this id.
	PeerID string
	// Summary is the listed thread, when known. It resolves the partner.
	Summary *model.Thread

	PageSize           int
	PollInterval       time.Duration
	DirectPollInterval time.Duration
}

// Session is one open conversation.
type Session struct {
	remote Remote
	ids    identity.Resolver
	unread *unread.Store
	sched  schedule.Scheduler
	hook   *notify.Hook
	flash  *flash.Model
	logger *zap.Logger
	opts   Options

	machine *status.Machine
	changes chan struct{}

	mu      sync.RWMutex
	ctx     context.Context
	pair    identity.Pair
	msgs    []model.Message
	page    int
	hasMore bool
	polling bool
	closed  bool
	closers []func()

	// seq counts local timeline writes. local maps the id of each confirmed
	// send to the seq it was written at, until a poll returns it.
	seq   uint64
	local map[string]uint64
}

// New creates a session in the Idle state. unread, hook and flash may be nil.
func New(remote Remote, ids identity.Resolver, store *unread.Store, sched schedule.Scheduler, hook *notify.Hook, fl *flash.Model, logger *zap.Logger, opts Options) *Session {
	logger = logging.OrNop(logger)
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	logger = logger.With(zap.String("thread_id", opts.ThreadID), zap.String("peer_id", opts.PeerID))
	s := &Session{
		remote:  remote,
		ids:     ids,
		unread:  store,
		sched:   sched,
		hook:    hook,
		flash:   fl,
		logger:  logger,
		opts:    opts,
		changes: make(chan struct{}, 1),
		local:   make(map[string]uint64),
	}
	s.machine = status.NewMachine(func(c status.Change) {
		logger.Debug("thread state changed", zap.String("from", string(c.From)), zap.String("to", string(c.To)))
	})
	return s
}

// Direct reports whether the session is keyed by peer id rather than thread id.
func (s *Session) Direct() bool {
	return s.opts.ThreadID == ""
}

func (s *Session) key() string {
	if s.Direct() {
		return s.opts.PeerID
	}
	return s.opts.ThreadID
}

// Open loads the newest page and starts polling. A failed load leaves the
// session in the Failed state; Retry runs it again.
func (s *Session) Open(ctx context.Context) error {
	if !s.machine.TransitionFrom(status.Idle, status.LoadingInitial) {
		return fmt.Errorf("open thread in state %s", s.machine.Current())
	}
	return s.loadInitial(ctx)
}

// Retry re-runs the initial load after a failure.
func (s *Session) Retry(ctx context.Context) error {
	if !s.machine.TransitionFrom(status.Failed, status.LoadingInitial) {
		return fmt.Errorf("retry thread in state %s", s.machine.Current())
	}
	return s.loadInitial(ctx)
}

func (s *Session) loadInitial(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = context.WithoutCancel(ctx)
	s.pair = identity.ForThread(s.ids, s.opts.Summary, s.opts.PeerID)
	s.mu.Unlock()

	raw, err := s.remote.ListMessages(ctx, s.key(), 1, s.opts.PageSize)
	if err != nil {
		if s.machine.TransitionFrom(status.LoadingInitial, status.Failed) {
			s.logger.Warn("failed to load messages", zap.Error(err))
		}
		return fmt.Errorf("load messages: %w", err)
	}
	page := normalize.Messages(raw)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.msgs = merge(page, pendingOf(s.msgs))
	s.page = 1
	s.hasMore = len(page) >= s.opts.PageSize
	s.mu.Unlock()

	if !s.machine.TransitionFrom(status.LoadingInitial, status.Ready) {
		return ErrClosed
	}
	s.signal()
	s.startPolling()
	s.MarkRead()
	return nil
}

func (s *Session) startPolling() {
	interval := s.opts.PollInterval
	if s.Direct() {
		interval = s.opts.DirectPollInterval
	}
	stop := s.sched.Every(interval, s.tick)

	var unregister func()
	if s.hook != nil && !s.Direct() {
		unregister = s.hook.Register(s.opts.ThreadID, func(notify.Push) { s.tick() })
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		stop()
		if unregister != nil {
			unregister()
		}
		return
	}
	s.closers = append(s.closers, stop)
	if unregister != nil {
		s.closers = append(s.closers, unregister)
	}
}

func (s *Session) tick() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if err := s.Poll(ctx); err != nil && !errors.Is(err, ErrInFlight) && !errors.Is(err, ErrClosed) {
		s.logger.Debug("poll failed", zap.Error(err))
	}
}

// Poll re-fetches the newest page and merges it. Pagination state is never
// touched. Failures keep the current messages.
func (s *Session) Poll(ctx context.Context) error {
	switch s.machine.Current() {
	case status.Ready, status.LoadingMore:
	case status.Closed:
		return ErrClosed
	default:
		return nil
	}

	s.mu.Lock()
	if s.polling {
		s.mu.Unlock()
		return ErrInFlight
	}
	s.polling = true
	since := s.seq
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.polling = false
		s.mu.Unlock()
	}()

	raw, err := s.remote.ListMessages(ctx, s.key(), 1, s.opts.PageSize)
	if err != nil {
		return fmt.Errorf("poll messages: %w", err)
	}
	latest := normalize.Messages(raw)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.msgs = mergeLatest(s.msgs, latest, func(m model.Message) bool {
		return s.local[m.ID] > since
	})
	for _, m := range latest {
		delete(s.local, m.ID)
	}
	for id, at := range s.local {
		if at <= since {
			delete(s.local, id)
		}
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

// LoadMore fetches the next older page. It makes no request while another
// load runs or once the oldest page is known to be loaded.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.hasMore {
		s.mu.Unlock()
		return ErrNoMore
	}
	if !s.machine.TransitionFrom(status.Ready, status.LoadingMore) {
		s.mu.Unlock()
		return ErrInFlight
	}
	next := s.page + 1
	s.mu.Unlock()

	raw, err := s.remote.ListMessages(ctx, s.key(), next, s.opts.PageSize)
	if err != nil {
		if s.machine.TransitionFrom(status.LoadingMore, status.Ready) {
			s.logger.Warn("failed to load older messages", zap.Int("page", next), zap.Error(err))
			if s.flash != nil {
				s.flash.Warn("Couldn't load older messages")
			}
		}
		return fmt.Errorf("load page %d: %w", next, err)
	}
	older := normalize.Messages(raw)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.msgs = merge(s.msgs, older)
	s.page = next
	s.hasMore = len(older) >= s.opts.PageSize
	s.mu.Unlock()

	s.machine.TransitionFrom(status.LoadingMore, status.Ready)
	s.signal()
	return nil
}

// OnClose registers fn to run when the session closes, or runs it right
// away if the session is already closed.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	if !s.closed {
		s.closers = append(s.closers, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// Close stops polling and push delivery and runs the registered closers.
// Responses that arrive afterwards are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	for _, fn := range closers {
		fn()
	}
	_ = s.machine.Transition(status.Closed)
	s.signal()
}

// Messages returns a snapshot ordered oldest first.
func (s *Session) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Message(nil), s.msgs...)
}

// HasMore reports whether older pages may exist.
func (s *Session) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// State returns the lifecycle state.
func (s *Session) State() status.State {
	return s.machine.Current()
}

// Changes signals after every change to the message list. Signals coalesce.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

func (s *Session) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Pair returns the identities resolved when the session opened.
func (s *Session) Pair() identity.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

// IsMine reports whether msg was sent by the local user.
func (s *Session) IsMine(msg model.Message) bool {
	return s.Pair().IsMine(msg)
}

// Recipient is the user id messages in this thread are addressed to.
func (s *Session) Recipient() string {
	if p := s.Pair().Partner; p != "" {
		return p
	}
	return s.opts.PeerID
}

// MarkRead clears the thread's unread badge. Direct threads have no badge.
func (s *Session) MarkRead() {
	if s.unread == nil || s.Direct() {
		return
	}
	s.unread.MarkRead(s.opts.ThreadID)
}

// Report flags the conversation. Errors are returned to the caller.
func (s *Session) Report(ctx context.Context, reason string) error {
	if s.Direct() {
		return errors.New("report needs a server thread")
	}
	if err := s.remote.Report(ctx, s.opts.ThreadID, reason); err != nil {
		return fmt.Errorf("report thread: %w", err)
	}
	s.logger.Info("thread reported")
	return nil
}

// Block blocks the other participant. Errors are returned to the caller.
func (s *Session) Block(ctx context.Context) error {
	partner := s.Recipient()
	if partner == "" {
		return errors.New("block: partner unknown")
	}
	if err := s.remote.Block(ctx, partner); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	s.logger.Info("user blocked", zap.String("user_id", partner))
	return nil
}
