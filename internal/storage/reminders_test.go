package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), Config{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "reminders.db"),
		Location: time.UTC,
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustCreate(t *testing.T, st *Store, r reminder.Reminder) reminder.Reminder {
	t.Helper()
	require.NoError(t, st.Create(context.Background(), &r))
	return r
}

func TestCreateAndGetRoundTripsFields(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	at := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)

	r := mustCreate(t, st, reminder.Reminder{
		OwnerID:     42,
		Name:        "Take pills",
		ScheduledAt: at,
		NextRun:     at,
		Recurrence:  reminder.Daily,
		Attachment:  &reminder.Attachment{Ref: "file-1", Kind: reminder.KindPhoto},
	})
	require.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := st.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.OwnerID)
	assert.Equal(t, "Take pills", got.Name)
	assert.Equal(t, reminder.Daily, got.Recurrence)
	assert.True(t, got.NextRun.Equal(at))
	require.NotNil(t, got.Attachment)
	assert.Equal(t, reminder.KindPhoto, got.Attachment.Kind)
	assert.False(t, got.IsWeather)

	_, err = st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActiveAndToday(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	later := mustCreate(t, st, reminder.Reminder{OwnerID: 1, Name: "later today", NextRun: now.Add(3 * time.Hour), ScheduledAt: now.Add(3 * time.Hour)})
	tomorrow := mustCreate(t, st, reminder.Reminder{OwnerID: 1, Name: "tomorrow", NextRun: now.Add(24 * time.Hour), ScheduledAt: now.Add(24 * time.Hour)})
	past := mustCreate(t, st, reminder.Reminder{OwnerID: 1, Name: "done", NextRun: now.Add(-time.Hour), ScheduledAt: now.Add(-time.Hour)})
	overdue := mustCreate(t, st, reminder.Reminder{OwnerID: 1, Name: "stuck daily", Recurrence: reminder.Daily, NextRun: now.Add(-2 * time.Hour), ScheduledAt: now.Add(-2 * time.Hour)})
	mustCreate(t, st, reminder.Reminder{OwnerID: 2, Name: "someone else", NextRun: now.Add(time.Hour), ScheduledAt: now.Add(time.Hour)})

	active, err := st.ListActive(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, overdue.ID, active[0].ID)
	assert.Equal(t, later.ID, active[1].ID)
	assert.Equal(t, tomorrow.ID, active[2].ID)

	today, err := st.ListToday(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, later.ID, today[0].ID)

	pending, err := st.ListPending(ctx, now)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	stuck, err := st.ListOverdueRecurring(ctx, now)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, overdue.ID, stuck[0].ID)

	n, err := st.PruneDelivered(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = st.Get(ctx, past.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ctx, overdue.ID)
	assert.NoError(t, err, "recurring reminders are never pruned")
}

func TestUpdateAndDeleteCheckOwnership(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	at := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	r := mustCreate(t, st, reminder.Reminder{OwnerID: 7, Name: "old", NextRun: at, ScheduledAt: at})

	name := "new"
	_, err := st.Update(ctx, r.ID, 8, Patch{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = st.Update(ctx, "nope", 7, Patch{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)

	next := at.Add(48 * time.Hour)
	monthly := reminder.Monthly
	got, err := st.Update(ctx, r.ID, 7, Patch{Name: &name, NextRun: &next, ScheduledAt: &next, Recurrence: &monthly})
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)
	assert.True(t, got.NextRun.Equal(next))
	assert.Equal(t, reminder.Monthly, got.Recurrence)

	stored, err := st.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Name, stored.Name)
	assert.True(t, stored.NextRun.Equal(next))

	assert.ErrorIs(t, st.Delete(ctx, r.ID, 8), ErrForbidden)
	require.NoError(t, st.Delete(ctx, r.ID, 7))
	assert.ErrorIs(t, st.Delete(ctx, r.ID, 7), ErrNotFound)
}

func TestCreateAndUpdateReturnStoredPrecision(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	at := time.Date(2024, 3, 2, 8, 0, 0, 123456789, time.UTC)
	r := mustCreate(t, st, reminder.Reminder{OwnerID: 1, Name: "soon", NextRun: at, ScheduledAt: at})

	want := time.Date(2024, 3, 2, 8, 0, 0, 123000000, time.UTC)
	assert.True(t, r.NextRun.Equal(want), "next run %v", r.NextRun)
	assert.True(t, r.ScheduledAt.Equal(want))

	got, err := st.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRun.Equal(r.NextRun))

	next := at.Add(time.Hour + 999999*time.Nanosecond)
	updated, err := st.Update(ctx, r.ID, 1, Patch{NextRun: &next, ScheduledAt: &next})
	require.NoError(t, err)
	assert.True(t, updated.NextRun.Equal(next.Truncate(time.Millisecond)), "next run %v", updated.NextRun)

	got, err = st.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRun.Equal(updated.NextRun))
	require.NoError(t, st.Advance(ctx, r.ID, updated.NextRun, updated.NextRun.Add(time.Hour)))
}

func TestAdvanceIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	at := time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC)
	r := mustCreate(t, st, reminder.Reminder{OwnerID: 1, Name: "rent", Recurrence: reminder.Monthly, NextRun: at, ScheduledAt: at})

	next := reminder.AddMonths(at, 1)
	require.NoError(t, st.Advance(ctx, r.ID, at, next))

	got, err := st.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRun.Equal(time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC)))
	assert.True(t, got.ScheduledAt.Equal(at), "scheduled time is kept")

	assert.ErrorIs(t, st.Advance(ctx, r.ID, at, next.AddDate(0, 1, 0)), ErrStale)

	require.NoError(t, st.Delete(ctx, r.ID, 1))
	assert.ErrorIs(t, st.Advance(ctx, r.ID, next, next.AddDate(0, 1, 0)), ErrNotFound)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	assert.Error(t, err)
}
