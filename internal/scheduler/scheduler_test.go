package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/clock"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type memStore struct {
	mu     sync.Mutex
	rows   map[string]reminder.Reminder
	pruned time.Time
	advErr error
}

func newMemStore(rs ...reminder.Reminder) *memStore {
	m := &memStore{rows: map[string]reminder.Reminder{}}
	for _, r := range rs {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memStore) Get(_ context.Context, id string) (reminder.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return reminder.Reminder{}, storage.ErrNotFound
	}
	return r, nil
}

func (m *memStore) Advance(_ context.Context, id string, from, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advErr != nil {
		return m.advErr
	}
	r, ok := m.rows[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !r.NextRun.Equal(from) {
		return storage.ErrStale
	}
	r.NextRun = to
	m.rows[id] = r
	return nil
}

func (m *memStore) PruneDelivered(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = before
	var n int64
	for id, r := range m.rows {
		if !r.Recurring() && r.NextRun.Before(before) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) set(r reminder.Reminder) {
	m.mu.Lock()
	m.rows[r.ID] = r
	m.mu.Unlock()
}

func (m *memStore) remove(id string) {
	m.mu.Lock()
	delete(m.rows, id)
	m.mu.Unlock()
}

func (m *memStore) nextRun(t *testing.T, id string) time.Time {
	t.Helper()
	r, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	return r.NextRun
}

type recorder struct {
	mu     sync.Mutex
	got    []reminder.Reminder
	at     []time.Time
	clk    clock.Clock
	err    error
	onSend func(r reminder.Reminder)
}

func (d *recorder) Deliver(_ context.Context, r reminder.Reminder) error {
	if d.onSend != nil {
		d.onSend(r)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, r)
	d.at = append(d.at, d.clk.Now())
	return d.err
}

func (d *recorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.got)
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, start time.Time, rs ...reminder.Reminder) (*Scheduler, *memStore, *recorder, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(start)
	st := newMemStore(rs...)
	d := &recorder{clk: clk}
	s := New(Config{Location: time.UTC}, st, d, clk, eventbus.New(), logx.Nop())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, st, d, clk
}

func TestDailyReminderAdvancesByOneDay(t *testing.T) {
	r := reminder.Reminder{ID: "pills", OwnerID: 1, Name: "Take pills", Recurrence: reminder.Daily,
		NextRun: time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)}
	s, st, d, clk := setup(t, t0, r)
	s.Arm(r)

	clk.Set(time.Date(2024, 3, 2, 7, 59, 0, 0, time.UTC))
	assert.Equal(t, 0, d.count())

	clk.Set(time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC))
	require.Equal(t, 1, d.count())
	assert.True(t, st.nextRun(t, "pills").Equal(time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)))
	at, ok := s.NextRun("pills")
	require.True(t, ok)
	assert.True(t, at.Equal(time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)))

	clk.Advance(24 * time.Hour)
	assert.Equal(t, 2, d.count())
	assert.True(t, st.nextRun(t, "pills").Equal(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, s.Len())
}

func TestMonthlyReminderClampsToMonthEnd(t *testing.T) {
	for _, tc := range []struct {
		year int
		want time.Time
	}{
		{2024, time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC)},
		{2023, time.Date(2023, 2, 28, 8, 0, 0, 0, time.UTC)},
	} {
		first := time.Date(tc.year, 1, 31, 8, 0, 0, 0, time.UTC)
		r := reminder.Reminder{ID: "paris", OwnerID: 1, IsWeather: true, City: "Paris", Recurrence: reminder.Monthly, NextRun: first}
		s, st, d, clk := setup(t, first.Add(-time.Hour), r)
		s.Arm(r)
		clk.Set(first)
		require.Equal(t, 1, d.count())
		assert.True(t, st.nextRun(t, "paris").Equal(tc.want), "year %d got %v", tc.year, st.nextRun(t, "paris"))
	}
}

func TestOneOffRetiresAfterDelivery(t *testing.T) {
	r := reminder.Reminder{ID: "once", OwnerID: 1, Name: "call", NextRun: t0.Add(time.Hour)}
	s, st, d, clk := setup(t, t0, r)
	events, unsub := s.bus.Subscribe(16, EventRetired)
	defer unsub()

	s.Arm(r)
	clk.Advance(time.Hour)
	assert.Equal(t, 1, d.count())
	assert.False(t, s.Armed("once"))
	assert.Equal(t, 0, clk.Pending())
	assert.True(t, st.nextRun(t, "once").Equal(r.NextRun), "row is left for housekeeping")
	require.Len(t, events, 1)

	clk.Advance(48 * time.Hour)
	assert.Equal(t, 1, d.count())
}

func TestCancelPreventsDelivery(t *testing.T) {
	r := reminder.Reminder{ID: "x", OwnerID: 1, Name: "x", NextRun: t0.Add(time.Minute)}
	s, _, d, clk := setup(t, t0, r)
	s.Arm(r)
	require.True(t, s.Cancel("x"))
	assert.False(t, s.Cancel("x"))
	clk.Advance(time.Hour)
	assert.Equal(t, 0, d.count())
}

func TestRearmSupersedesPreviousTimer(t *testing.T) {
	r := reminder.Reminder{ID: "x", OwnerID: 1, Name: "x", NextRun: t0.Add(time.Hour)}
	s, st, d, clk := setup(t, t0, r)
	s.Arm(r)

	moved := r
	moved.NextRun = t0.Add(3 * time.Hour)
	st.set(moved)
	s.Arm(moved)
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(2 * time.Hour)
	assert.Equal(t, 0, d.count(), "nothing at the old time")
	clk.Advance(time.Hour)
	require.Equal(t, 1, d.count())
	assert.True(t, d.at[0].Equal(moved.NextRun))
}

func TestArmIfIdle(t *testing.T) {
	r := reminder.Reminder{ID: "x", OwnerID: 1, Name: "x", NextRun: t0.Add(time.Hour)}
	s, _, d, clk := setup(t, t0, r)
	assert.True(t, s.ArmIfIdle(r))
	assert.False(t, s.ArmIfIdle(r))
	clk.Advance(time.Hour)
	assert.Equal(t, 1, d.count())
}

func TestPastDueFiresImmediately(t *testing.T) {
	r := reminder.Reminder{ID: "late", OwnerID: 1, Name: "late", NextRun: t0.Add(-time.Minute)}
	s, _, d, clk := setup(t, t0, r)
	s.Arm(r)
	clk.Advance(0)
	assert.Equal(t, 1, d.count())
}

func TestDeletedBeforeFireIsNotDelivered(t *testing.T) {
	r := reminder.Reminder{ID: "gone", OwnerID: 1, Name: "x", NextRun: t0.Add(time.Minute)}
	s, st, d, clk := setup(t, t0, r)
	s.Arm(r)
	st.remove("gone")
	clk.Advance(time.Minute)
	assert.Equal(t, 0, d.count())
	assert.False(t, s.Armed("gone"))
}

func TestCancelDuringDeliveryStopsAdvance(t *testing.T) {
	r := reminder.Reminder{ID: "d", OwnerID: 1, Name: "x", Recurrence: reminder.Daily, NextRun: t0.Add(time.Minute)}
	s, st, d, clk := setup(t, t0, r)
	d.onSend = func(reminder.Reminder) {
		state, ok := s.State("d")
		assert.True(t, ok)
		assert.Equal(t, StateFiring, state)
		s.Cancel("d")
	}
	s.Arm(r)
	clk.Advance(time.Minute)
	assert.Equal(t, 1, d.count())
	assert.True(t, st.nextRun(t, "d").Equal(r.NextRun), "cancelled fire must not advance")
	assert.False(t, s.Armed("d"))
	clk.Advance(48 * time.Hour)
	assert.Equal(t, 1, d.count())
}

func TestDeliveryFailureStillAdvances(t *testing.T) {
	r := reminder.Reminder{ID: "w", OwnerID: 1, IsWeather: true, City: "Paris", Recurrence: reminder.Daily, NextRun: t0.Add(time.Minute)}
	s, st, d, clk := setup(t, t0, r)
	d.err = errors.New("gateway down")
	s.Arm(r)
	clk.Advance(time.Minute)
	assert.Equal(t, 1, d.count())
	assert.True(t, st.nextRun(t, "w").Equal(r.NextRun.AddDate(0, 0, 1)))
	assert.True(t, s.Armed("w"))
}

func TestPanicInDeliveryIsContained(t *testing.T) {
	a := reminder.Reminder{ID: "a", OwnerID: 1, Name: "a", NextRun: t0.Add(time.Minute)}
	b := reminder.Reminder{ID: "b", OwnerID: 1, Name: "b", NextRun: t0.Add(2 * time.Minute)}
	s, _, d, clk := setup(t, t0, a, b)
	d.onSend = func(r reminder.Reminder) {
		if r.ID == "a" {
			panic("boom")
		}
	}
	s.Arm(a)
	s.Arm(b)
	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, d.count())
	assert.Equal(t, "b", d.got[0].ID)
	assert.False(t, s.Armed("a"))
}

func TestPruneUsesRetention(t *testing.T) {
	old := reminder.Reminder{ID: "old", OwnerID: 1, Name: "x", NextRun: t0.Add(-10 * 24 * time.Hour)}
	clk := clock.NewManual(t0)
	st := newMemStore(old)
	s := New(Config{Retention: 7 * 24 * time.Hour}, st, &recorder{clk: clk}, clk, nil, logx.Nop())
	n, err := s.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, st.pruned.Equal(t0.Add(-7*24*time.Hour)))
}

func TestStopCancelsTimers(t *testing.T) {
	r := reminder.Reminder{ID: "x", OwnerID: 1, Name: "x", NextRun: t0.Add(time.Minute)}
	s, _, d, clk := setup(t, t0, r)
	s.Arm(r)
	require.NoError(t, s.Stop(context.Background()))
	clk.Advance(time.Hour)
	assert.Equal(t, 0, d.count())
	assert.Equal(t, 0, s.Len())
	s.Arm(r)
	assert.Equal(t, 0, s.Len())
}

func TestAdvanceFailureDropsTimer(t *testing.T) {
	r := reminder.Reminder{ID: "p", OwnerID: 1, Name: "x", Recurrence: reminder.Daily, NextRun: t0.Add(time.Minute)}
	s, st, d, clk := setup(t, t0, r)
	st.advErr = errors.New("disk full")
	s.Arm(r)
	clk.Advance(time.Minute)
	assert.Equal(t, 1, d.count())
	assert.False(t, s.Armed("p"))
}
