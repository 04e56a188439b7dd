// Package schedule abstracts the timers behind polling loops and debounces so
// that tests can drive them with virtual time.
package schedule

import (
	"sync"
	"time"
)

// Timer is a one-shot timer that can be stopped or re-armed.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the timer was active.
	Stop() bool
	// Reset re-arms the timer to fire after d.
	Reset(d time.Duration)
}

// Scheduler creates periodic ticks and one-shot timers.
type Scheduler interface {
	// Every calls fn every d until stop is called. Ticks are independent: a
	// slow fn never delays the next tick.
	Every(d time.Duration, fn func()) (stop func())
	// AfterFunc calls fn once after d.
	AfterFunc(d time.Duration, fn func()) Timer
	// Now returns the scheduler's current time.
	Now() time.Time
}

// Real is the wall-clock scheduler.
type Real struct{}

// NewReal returns the wall-clock scheduler.
func NewReal() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) Every(d time.Duration, fn func()) func() {
	if d <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				go fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{time.AfterFunc(d, fn)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool            { return r.t.Stop() }
func (r realTimer) Reset(d time.Duration) { r.t.Reset(d) }
