// Package typing exchanges typing indicators for an open thread: it signals
// the local user's typing with a debounce and polls who else is typing.
package typing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/identity"
	"github.com/tribalmingle/mobileapp-sub000/internal/logging"
	"github.com/tribalmingle/mobileapp-sub000/internal/normalize"
	"github.com/tribalmingle/mobileapp-sub000/internal/schedule"
	"github.com/tribalmingle/mobileapp-sub000/internal/task"
)

const (
	DefaultDebounce     = 1500 * time.Millisecond
	DefaultPollInterval = 2 * time.Second
)

var errPollInFlight = errors.New("typing poll already in flight")

// Signaler is the server surface for typing indicators.
type Signaler interface {
	SetTyping(ctx context.Context, threadID string, isTyping bool) error
	TypingUsers(ctx context.Context, threadID string) (any, error)
}

// Channel tracks typing for one thread.
type Channel struct {
	signaler     Signaler
	tasks        task.Runner
	sched        schedule.Scheduler
	ids          identity.Resolver
	logger       *zap.Logger
	threadID     string
	debounce     time.Duration
	pollInterval time.Duration
	changes      chan struct{}

	mu       sync.Mutex
	compose  string
	typing   bool
	timer    schedule.Timer
	armed    uint64
	peers    []string
	polling  bool
	stopPoll func()
	left     bool
}

// New creates a channel for threadID. Without a thread id (a direct thread
// not yet created on the server) no signals are sent and nothing is polled.
func New(signaler Signaler, tasks task.Runner, sched schedule.Scheduler, ids identity.Resolver, logger *zap.Logger, threadID string, debounce, pollInterval time.Duration) *Channel {
	logger = logging.OrNop(logger)
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Channel{
		signaler:     signaler,
		tasks:        tasks,
		sched:        sched,
		ids:          ids,
		logger:       logger.With(zap.String("thread_id", threadID)),
		threadID:     strings.TrimSpace(threadID),
		debounce:     debounce,
		pollInterval: pollInterval,
		changes:      make(chan struct{}, 1),
	}
}

// Start begins polling for peers' typing state.
func (c *Channel) Start() {
	if c.threadID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left || c.stopPoll != nil {
		return
	}
	c.stopPoll = c.sched.Every(c.pollInterval, c.tick)
}

// OnInputChange records the compose text. The first keystroke of a burst
// signals start; the burst ends after the debounce with a stop signal.
// Clearing the text ends it at once.
func (c *Channel) OnInputChange(text string) {
	c.mu.Lock()
	c.compose = text
	if c.left {
		c.mu.Unlock()
		return
	}

	if strings.TrimSpace(text) == "" {
		wasTyping := c.typing
		c.typing = false
		c.disarmLocked()
		c.mu.Unlock()
		if wasTyping {
			c.signal(false)
		}
		return
	}

	start := !c.typing
	c.typing = true
	c.disarmLocked()
	c.armed++
	gen := c.armed
	c.timer = c.sched.AfterFunc(c.debounce, func() { c.expire(gen) })
	c.mu.Unlock()

	if start {
		c.signal(true)
	}
}

func (c *Channel) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.armed || !c.typing || c.left {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.timer = nil
	c.mu.Unlock()
	c.signal(false)
}

// Leave stops polling and the debounce, signalling stop if the user was typing.
func (c *Channel) Leave() {
	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return
	}
	c.left = true
	wasTyping := c.typing
	c.typing = false
	c.disarmLocked()
	stopPoll := c.stopPoll
	c.stopPoll = nil
	c.peers = nil
	c.mu.Unlock()

	if stopPoll != nil {
		stopPoll()
	}
	if wasTyping {
		c.signal(false)
	}
}

// Typing reports whether the local user is currently marked as typing.
func (c *Channel) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Compose returns the current compose text.
func (c *Channel) Compose() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compose
}

// ClearCompose empties the compose text, ending any typing burst.
func (c *Channel) ClearCompose() {
	c.OnInputChange("")
}

// PeerTyping reports whether anyone other than the local user is typing.
func (c *Channel) PeerTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers) > 0
}

// Peers returns the ids of the other users currently typing.
func (c *Channel) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.peers...)
}

func (c *Channel) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), task.DefaultTimeout)
	defer cancel()
	if err := c.PollPeers(ctx); err != nil && !errors.Is(err, errPollInFlight) {
		c.logger.Debug("typing poll failed", zap.Error(err))
	}
}

// PollPeers fetches who is typing. On failure the previous state is kept.
func (c *Channel) PollPeers(ctx context.Context) error {
	if c.threadID == "" {
		return nil
	}
	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return nil
	}
	if c.polling {
		c.mu.Unlock()
		return errPollInFlight
	}
	c.polling = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.polling = false
		c.mu.Unlock()
	}()

	raw, err := c.signaler.TypingUsers(ctx, c.threadID)
	if err != nil {
		return fmt.Errorf("typing users: %w", err)
	}
	self := identity.Pair{Self: c.ids.Self()}
	var peers []string
	for _, id := range normalize.TypingUserIDs(raw) {
		if !self.IsSelf(id) {
			peers = append(peers, id)
		}
	}

	c.mu.Lock()
	if c.left || slices.Equal(c.peers, peers) {
		c.mu.Unlock()
		return nil
	}
	c.peers = peers
	c.mu.Unlock()

	select {
	case c.changes <- struct{}{}:
	default:
	}
	return nil
}

// Changes signals when the set of typing peers changes. Signals coalesce.
func (c *Channel) Changes() <-chan struct{} {
	return c.changes
}

func (c *Channel) signal(isTyping bool) {
	if c.threadID == "" || c.tasks == nil {
		return
	}
	name := "typing-stop"
	if isTyping {
		name = "typing-start"
	}
	threadID := c.threadID
	c.tasks.Go(name, func(ctx context.Context) error {
		return c.signaler.SetTyping(ctx, threadID, isTyping)
	})
}
