package scheduler

import (
	"context"
	"time"

	"remindbot/internal/reminder"
)

// Lifecycle events published on the bus.
const (
	EventArmed     = "reminder.armed"
	EventFired     = "reminder.fired"
	EventRetired   = "reminder.retired"
	EventAdvanced  = "reminder.advanced"
	EventCancelled = "reminder.cancelled"
	EventFailed    = "reminder.failed"
)

type State int

const (
	StateArmed State = iota + 1
	StateFiring
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateFiring:
		return "firing"
	}
	return "idle"
}

// Store is the slice of storage the scheduler needs.
type Store interface {
	Get(ctx context.Context, id string) (reminder.Reminder, error)
	Advance(ctx context.Context, id string, from, to time.Time) error
	PruneDelivered(ctx context.Context, before time.Time) (int64, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, r reminder.Reminder) error
}

type Config struct {
	// Location is used for the housekeeping cron. Nil means time.Local.
	Location       *time.Location
	DeliverTimeout time.Duration
	// PruneSchedule is a cron spec; empty disables housekeeping.
	PruneSchedule string
	Retention     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 30 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	return c
}
