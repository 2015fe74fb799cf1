package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"remindbot/internal/reminder"
)

type reminderRow struct {
	ID             string         `db:"id"`
	UserID         int64          `db:"user_id"`
	Name           string         `db:"name"`
	Time           int64          `db:"time"`
	RepeatInterval sql.NullString `db:"repeat_interval"`
	IsWeather      bool           `db:"is_weather"`
	City           sql.NullString `db:"city"`
	AttachmentRef  sql.NullString `db:"attachment_ref"`
	AttachmentKind sql.NullString `db:"attachment_kind"`
	NextRun        int64          `db:"next_run"`
	CreatedAt      int64          `db:"created_at"`
}

const selectColumns = `SELECT id, user_id, name, time, repeat_interval, is_weather, city,
	attachment_ref, attachment_kind, next_run, created_at FROM reminders`

func toRow(r reminder.Reminder) reminderRow {
	row := reminderRow{
		ID:        r.ID,
		UserID:    r.OwnerID,
		Name:      r.Name,
		Time:      r.ScheduledAt.UnixMilli(),
		IsWeather: r.IsWeather,
		City:      nullString(r.City),
		NextRun:   r.NextRun.UnixMilli(),
		CreatedAt: r.CreatedAt.UnixMilli(),
	}
	if r.Recurrence != reminder.None {
		row.RepeatInterval = nullString(string(r.Recurrence))
	}
	if r.Attachment != nil {
		row.AttachmentRef = nullString(r.Attachment.Ref)
		row.AttachmentKind = nullString(string(r.Attachment.Kind))
	}
	return row
}

func (s *Store) fromRow(row reminderRow) reminder.Reminder {
	rec, _ := reminder.ParseRecurrence(row.RepeatInterval.String)
	r := reminder.Reminder{
		ID:          row.ID,
		OwnerID:     row.UserID,
		Name:        row.Name,
		ScheduledAt: time.UnixMilli(row.Time).In(s.loc),
		Recurrence:  rec,
		IsWeather:   row.IsWeather,
		City:        row.City.String,
		NextRun:     time.UnixMilli(row.NextRun).In(s.loc),
		CreatedAt:   time.UnixMilli(row.CreatedAt).In(s.loc),
	}
	if row.AttachmentRef.Valid && row.AttachmentRef.String != "" {
		r.Attachment = &reminder.Attachment{
			Ref:  row.AttachmentRef.String,
			Kind: reminder.AttachmentKind(row.AttachmentKind.String),
		}
	}
	return r
}

// Create assigns ID and CreatedAt when empty and inserts r. On return r holds
// the stored values, timestamps included at millisecond precision.
func (s *Store) Create(ctx context.Context, r *reminder.Reminder) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	row := toRow(*r)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, user_id, name, time, repeat_interval, is_weather, city,
			attachment_ref, attachment_kind, next_run, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID, row.UserID, row.Name, row.Time, row.RepeatInterval, row.IsWeather, row.City,
		row.AttachmentRef, row.AttachmentKind, row.NextRun, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	*r = s.fromRow(row)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (reminder.Reminder, error) {
	return s.get(ctx, s.db, id)
}

func (s *Store) get(ctx context.Context, q sqlx.QueryerContext, id string) (reminder.Reminder, error) {
	var row reminderRow
	err := sqlx.GetContext(ctx, q, &row, selectColumns+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, ErrNotFound
	}
	if err != nil {
		return reminder.Reminder{}, fmt.Errorf("get reminder: %w", err)
	}
	return s.fromRow(row), nil
}

// ListActive returns the owner's reminders that are still due or recurring.
func (s *Store) ListActive(ctx context.Context, ownerID int64, now time.Time) ([]reminder.Reminder, error) {
	return s.list(ctx, "list active",
		selectColumns+` WHERE user_id = $1 AND (next_run > $2 OR repeat_interval IS NOT NULL) ORDER BY next_run ASC`,
		ownerID, now.UnixMilli())
}

// ListToday returns the owner's reminders still due before local midnight.
func (s *Store) ListToday(ctx context.Context, ownerID int64, now time.Time) ([]reminder.Reminder, error) {
	local := now.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1)
	from := max(start.UnixMilli(), now.UnixMilli()+1)
	return s.list(ctx, "list today",
		selectColumns+` WHERE user_id = $1 AND next_run >= $2 AND next_run < $3 ORDER BY next_run ASC`,
		ownerID, from, end.UnixMilli())
}

// ListPending returns every reminder with next_run after now, oldest first.
func (s *Store) ListPending(ctx context.Context, now time.Time) ([]reminder.Reminder, error) {
	return s.list(ctx, "list pending",
		selectColumns+` WHERE next_run > $1 ORDER BY next_run ASC`, now.UnixMilli())
}

// ListOverdueRecurring returns recurring reminders whose next_run is not after now.
func (s *Store) ListOverdueRecurring(ctx context.Context, now time.Time) ([]reminder.Reminder, error) {
	return s.list(ctx, "list overdue",
		selectColumns+` WHERE repeat_interval IS NOT NULL AND next_run <= $1 ORDER BY next_run ASC`, now.UnixMilli())
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]reminder.Reminder, error) {
	var rows []reminderRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]reminder.Reminder, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.fromRow(row))
	}
	return out, nil
}

// Update applies p to the owner's reminder in one transaction and returns the result.
func (s *Store) Update(ctx context.Context, id string, ownerID int64, p Patch) (reminder.Reminder, error) {
	var out reminder.Reminder
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.owned(ctx, tx, id, ownerID)
		if err != nil {
			return err
		}
		if p.Name != nil {
			cur.Name = *p.Name
		}
		if p.ScheduledAt != nil {
			cur.ScheduledAt = *p.ScheduledAt
		}
		if p.NextRun != nil {
			cur.NextRun = *p.NextRun
		}
		if p.Recurrence != nil {
			cur.Recurrence = *p.Recurrence
		}
		row := toRow(cur)
		cur = s.fromRow(row)
		_, err = tx.ExecContext(ctx,
			`UPDATE reminders SET name = $1, time = $2, next_run = $3, repeat_interval = $4 WHERE id = $5`,
			row.Name, row.Time, row.NextRun, row.RepeatInterval, row.ID)
		if err != nil {
			return fmt.Errorf("update reminder: %w", err)
		}
		out = cur
		return nil
	})
	return out, err
}

func (s *Store) Delete(ctx context.Context, id string, ownerID int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.owned(ctx, tx, id, ownerID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete reminder: %w", err)
		}
		return nil
	})
}

// Advance moves next_run from -> to only if the row still holds from.
func (s *Store) Advance(ctx context.Context, id string, from, to time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET next_run = $1 WHERE id = $2 AND next_run = $3`,
		to.UnixMilli(), id, from.UnixMilli())
	if err != nil {
		return fmt.Errorf("advance reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance reminder: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrStale
}

// PruneDelivered deletes one-off reminders whose next_run is before the cutoff.
func (s *Store) PruneDelivered(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE repeat_interval IS NULL AND next_run < $1`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune reminders: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) owned(ctx context.Context, tx *sqlx.Tx, id string, ownerID int64) (reminder.Reminder, error) {
	cur, err := s.get(ctx, tx, id)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if cur.OwnerID != ownerID {
		return reminder.Reminder{}, ErrForbidden
	}
	return cur, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
