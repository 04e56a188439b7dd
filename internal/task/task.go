// Package task runs detached side effects: best-effort network signals whose
// outcome the caller never awaits. Their errors are logged and swallowed.
package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/logging"
)

// Runner starts detached tasks.
type Runner interface {
	// Go runs fn without blocking the caller. A returned error is logged and
	// otherwise dropped.
	Go(name string, fn func(ctx context.Context) error)
}

// DefaultTimeout bounds a detached task so a hung request cannot leak forever.
const DefaultTimeout = 30 * time.Second

// Async runs each task on its own goroutine.
type Async struct {
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsync creates a goroutine-backed runner.
func NewAsync(logger *zap.Logger) *Async {
	logger = logging.OrNop(logger)
	return &Async{logger: logger, timeout: DefaultTimeout}
}

func (a *Async) Go(name string, fn func(ctx context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.logger.Warn("detached task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Wait blocks until every started task has returned.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Inline runs tasks synchronously on the caller's goroutine and records them.
// It makes detached effects observable in tests.
type Inline struct {
	mu     sync.Mutex
	names  []string
	errors []error
}

func (r *Inline) Go(name string, fn func(ctx context.Context) error) {
	err := fn(context.Background())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	if err != nil {
		r.errors = append(r.errors, err)
	}
}

// Names returns the names of the tasks run so far, in order.
func (r *Inline) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// Errors returns the swallowed errors.
func (r *Inline) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}
