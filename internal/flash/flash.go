// Package flash holds transient, self-dismissing notices (toasts) raised by
// the synchronizers when a non-fatal operation fails.
package flash

import (
	"sync"
	"time"
)

// Level is the severity of a notice.
type Level int

const (
	Info Level = iota
	Warn
	Err
)

func (l Level) String() string {
	switch l {
	case Warn:
		return "warn"
	case Err:
		return "error"
	default:
		return "info"
	}
}

// Notice is a single toast.
type Notice struct {
	Text    string
	Level   Level
	Expires time.Time
}

// DefaultTTL is how long a notice stays visible when no TTL is configured.
const DefaultTTL = 4 * time.Second

// Model holds the current notice and fans it out to watchers.
type Model struct {
	mu      sync.RWMutex
	current Notice
	ttl     time.Duration
	now     func() time.Time
	watchCh chan Notice
}

// New creates a notice model whose notices expire after ttl.
func New(ttl time.Duration) *Model {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Model{
		ttl:     ttl,
		now:     time.Now,
		watchCh: make(chan Notice, 8),
	}
}

// WithClock replaces the time source; used with a virtual scheduler.
func (m *Model) WithClock(now func() time.Time) *Model {
	m.now = now
	return m
}

// Info raises an info notice.
func (m *Model) Info(msg string) { m.set(msg, Info) }

// Warn raises a warning notice.
func (m *Model) Warn(msg string) { m.set(msg, Warn) }

// Err raises an error notice from err.
func (m *Model) Err(err error) {
	if err == nil {
		return
	}
	m.set(err.Error(), Err)
}

func (m *Model) set(msg string, level Level) {
	n := Notice{Text: msg, Level: level, Expires: m.now().Add(m.ttl)}
	m.mu.Lock()
	m.current = n
	m.mu.Unlock()
	select {
	case m.watchCh <- n:
	default:
	}
}

// Current returns the visible notice, or nil once it has expired.
func (m *Model) Current() *Notice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current.Text == "" || !m.now().Before(m.current.Expires) {
		return nil
	}
	n := m.current
	return &n
}

// Watch returns a channel receiving every notice as it is raised.
func (m *Model) Watch() <-chan Notice {
	return m.watchCh
}
