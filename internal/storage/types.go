package storage

import (
	"errors"
	"time"

	"remindbot/internal/reminder"
)

var (
	ErrNotFound  = errors.New("reminder not found")
	ErrForbidden = errors.New("reminder belongs to another user")
	// ErrStale means next_run changed since the caller read it.
	ErrStale = errors.New("reminder changed concurrently")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): DSN is a file path
//   - "postgres" or "pgx": DSN is a libpq/pgx connection string
type Config struct {
	Driver      string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
	// Location defines "today" for ListToday. Nil means time.Local.
	Location *time.Location
}

// Patch lists the fields an edit may change. Nil fields are left alone.
type Patch struct {
	Name        *string
	ScheduledAt *time.Time
	NextRun     *time.Time
	Recurrence  *reminder.Recurrence
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.ScheduledAt == nil && p.NextRun == nil && p.Recurrence == nil
}
