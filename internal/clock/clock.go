// Package clock abstracts wall time and one-shot timers so scheduling can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

type Timer interface {
	// Stop reports whether the call prevented the timer from firing.
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is backed by the time package.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Manual is a fake clock. Time only moves on Set/Advance, which run due
// callbacks synchronously in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	c   *Manual
	id  uint64
	at  time.Time
	fn  func()
	seq uint64
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start, timers: map[uint64]*manualTimer{}}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers f. A non-positive d is due immediately but still only
// runs on the next Advance.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{c: m, id: m.seq, at: m.now.Add(d), fn: f, seq: m.seq}
	m.timers[t.id] = t
	return t
}

func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if _, ok := t.c.timers[t.id]; !ok {
		return false
	}
	delete(t.c.timers, t.id)
	return true
}

// Pending is the number of registered timers that have not fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set moves the clock to at (never backwards), firing every timer due by
// then in deadline order. Now reads as each timer's deadline while its callback
// runs, and timers registered by callbacks fire in the same call if due.
func (m *Manual) Set(at time.Time) {
	for {
		m.mu.Lock()
		next := m.firstDueLocked(at)
		if next == nil {
			if at.After(m.now) {
				m.now = at
			}
			m.mu.Unlock()
			return
		}
		if next.at.After(m.now) {
			m.now = next.at
		}
		delete(m.timers, next.id)
		m.mu.Unlock()

		next.fn()
	}
}

func (m *Manual) firstDueLocked(by time.Time) *manualTimer {
	var first *manualTimer
	for _, t := range m.timers {
		if t.at.After(by) && t.at.After(m.now) {
			continue
		}
		if first == nil || t.at.Before(first.at) || (t.at.Equal(first.at) && t.seq < first.seq) {
			first = t
		}
	}
	return first
}
