package schedule

import (
	"sync"
	"time"
)

// Fake is a virtual-time scheduler. Nothing fires until Advance is called;
// callbacks then run synchronously on the caller's goroutine, in due order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	next   int
	timers map[int]*fakeTimer
}

type fakeTimer struct {
	f      *Fake
	id     int
	at     time.Time
	period time.Duration
	fn     func()
	active bool
}

// NewFake returns a virtual scheduler starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, timers: make(map[int]*fakeTimer)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Every(d time.Duration, fn func()) func() {
	if d <= 0 {
		return func() {}
	}
	t := f.add(d, d, fn)
	return func() { t.Stop() }
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.add(d, 0, fn)
}

func (f *Fake) add(d, period time.Duration, fn func()) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{f: f, id: f.next, at: f.now.Add(d), period: period, fn: fn, active: true}
	f.next++
	f.timers[t.id] = t
	return t
}

// Advance moves virtual time forward by d, firing every timer that comes due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		due := f.earliestLocked(target)
		if due == nil {
			break
		}
		f.now = due.at
		if due.period > 0 {
			due.at = due.at.Add(due.period)
		} else {
			due.active = false
			delete(f.timers, due.id)
		}
		fn := due.fn
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

// Active returns the number of armed timers and tickers.
func (f *Fake) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) earliestLocked(limit time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range f.timers {
		if !t.active || t.at.After(limit) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.id < best.id) {
			best = t
		}
	}
	return best
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	was := t.active
	t.active = false
	delete(t.f.timers, t.id)
	return was
}

func (t *fakeTimer) Reset(d time.Duration) {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.at = t.f.now.Add(d)
	t.active = true
	t.f.timers[t.id] = t
}
