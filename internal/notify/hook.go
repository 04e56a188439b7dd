// Package notify routes external "new message" notifications to the
// synchronizers that should refresh immediately instead of waiting for their
// next poll.
package notify

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/logging"
	"github.com/tribalmingle/mobileapp-sub000/internal/model"
)

// TypeMessage is the push type announcing a new message.
const TypeMessage = "message"

// Push is a decoded external notification.
type Push struct {
	Type     string
	ThreadID string
}

type listener struct {
	threadID string
	fn       func(Push)
}

// Hook subscribes to "push." events on the bus and calls the registered
// listeners for every new-message notification.
type Hook struct {
	bus    *bus.Bus
	logger *zap.Logger
	stop   func()

	mu        sync.RWMutex
	listeners map[int]listener
	next      int
}

// NewHook creates a hook. Nothing is delivered until Start.
func NewHook(b *bus.Bus, logger *zap.Logger) *Hook {
	logger = logging.OrNop(logger)
	return &Hook{bus: b, logger: logger, listeners: make(map[int]listener)}
}

// Start subscribes to push events on the bus until Stop is called or ctx
// is done.
func (h *Hook) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	stop := h.bus.Handle(bus.KindPushPrefix, 64, h.handleEvent)
	go func() {
		<-ctx.Done()
		stop()
	}()
	h.stop = func() {
		cancel()
		stop()
	}
}

// Stop stops delivering events.
func (h *Hook) Stop() {
	if h.stop != nil {
		h.stop()
	}
}

// Register adds a listener. An empty threadID receives every new-message
// notification; otherwise only notifications for that thread. The returned
// function removes the listener.
func (h *Hook) Register(threadID string, fn func(Push)) (unregister func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.listeners[id] = listener{threadID: strings.TrimSpace(threadID), fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Dispatch calls every matching listener synchronously and returns how many
// were called. Non-message notifications are ignored.
func (h *Hook) Dispatch(p Push) int {
	fns := h.match(p)
	for _, fn := range fns {
		fn(p)
	}
	return len(fns)
}

func (h *Hook) handleEvent(evt bus.Event) {
	p := Push{Type: strings.TrimPrefix(evt.Kind, bus.KindPushPrefix), ThreadID: evt.ThreadID}
	fns := h.match(p)
	if len(fns) == 0 {
		return
	}
	h.logger.Debug("push received", zap.String("type", p.Type), zap.String("thread_id", p.ThreadID), zap.Int("listeners", len(fns)))
	// Each listener does network I/O; one slow refresh must not hold up the others.
	for _, fn := range fns {
		go fn(p)
	}
}

func (h *Hook) match(p Push) []func(Push) {
	if p.Type != TypeMessage {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	var fns []func(Push)
	for _, l := range h.listeners {
		if l.threadID == "" || model.SameID(l.threadID, p.ThreadID) {
			fns = append(fns, l.fn)
		}
	}
	return fns
}
