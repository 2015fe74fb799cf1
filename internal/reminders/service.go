// Package reminders is the request-side API: it resolves user input, persists
// reminders and keeps the scheduler in step with every change.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/clock"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/timeparse"
	logx "remindbot/pkg/logx"
)

var (
	ErrNotFound   = storage.ErrNotFound
	ErrForbidden  = storage.ErrForbidden
	ErrUnresolved = timeparse.ErrUnresolved
	ErrInvalid    = reminder.ErrInvalid
)

type Store interface {
	Create(ctx context.Context, r *reminder.Reminder) error
	Get(ctx context.Context, id string) (reminder.Reminder, error)
	ListActive(ctx context.Context, ownerID int64, now time.Time) ([]reminder.Reminder, error)
	ListToday(ctx context.Context, ownerID int64, now time.Time) ([]reminder.Reminder, error)
	Update(ctx context.Context, id string, ownerID int64, p storage.Patch) (reminder.Reminder, error)
	Delete(ctx context.Context, id string, ownerID int64) error
	ListPending(ctx context.Context, now time.Time) ([]reminder.Reminder, error)
	ListOverdueRecurring(ctx context.Context, now time.Time) ([]reminder.Reminder, error)
}

type Scheduler interface {
	Arm(r reminder.Reminder)
	ArmIfIdle(r reminder.Reminder) bool
	Cancel(id string) bool
}

type Resolver interface {
	Resolve(raw string, now time.Time, locale string) (timeparse.Result, error)
}

type Service struct {
	store    Store
	sched    Scheduler
	resolver Resolver
	clock    clock.Clock
	log      logx.Logger
	locale   string

	locks *keyLock
}

func New(store Store, sched Scheduler, resolver Resolver, clk clock.Clock, locale string, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if locale == "" {
		locale = "ru"
	}
	return &Service{
		store:    store,
		sched:    sched,
		resolver: resolver,
		clock:    clk,
		log:      log,
		locale:   locale,
		locks:    newKeyLock(),
	}
}

type CreateInput struct {
	OwnerID    int64
	Name       string
	TimePhrase string
	IsWeather  bool
	City       string
	Attachment *reminder.Attachment
	// Resolved, when set, is used instead of resolving TimePhrase again.
	Resolved *timeparse.Result
}

// Preview resolves a time phrase against the current time without storing anything.
func (s *Service) Preview(phrase string) (timeparse.Result, error) {
	return s.resolver.Resolve(phrase, s.clock.Now(), s.locale)
}

// Create resolves the time phrase, stores the reminder and arms it.
// Nothing is stored when the phrase cannot be resolved.
func (s *Service) Create(ctx context.Context, in CreateInput) (reminder.Reminder, error) {
	now := s.clock.Now()
	var res timeparse.Result
	if in.Resolved != nil {
		res = *in.Resolved
	} else {
		var err error
		if res, err = s.resolver.Resolve(in.TimePhrase, now, s.locale); err != nil {
			return reminder.Reminder{}, err
		}
	}
	r := reminder.Reminder{
		OwnerID:     in.OwnerID,
		Name:        strings.TrimSpace(in.Name),
		ScheduledAt: res.At,
		Recurrence:  res.Recurrence,
		IsWeather:   in.IsWeather,
		City:        strings.TrimSpace(in.City),
		Attachment:  in.Attachment,
		NextRun:     res.At,
		CreatedAt:   now,
	}
	if r.IsWeather && r.Name == "" {
		r.Name = reminder.DefaultWeatherName
	}
	if err := r.Validate(now); err != nil {
		return reminder.Reminder{}, err
	}
	if err := s.store.Create(ctx, &r); err != nil {
		return reminder.Reminder{}, err
	}
	s.sched.Arm(r)
	s.log.Info("reminder created",
		logx.String("reminder", r.ID), logx.Int64("owner", r.OwnerID),
		logx.Time("next_run", r.NextRun), logx.String("recurrence", r.Recurrence.String()))
	return r, nil
}

// Get returns the owner's reminder.
func (s *Service) Get(ctx context.Context, id string, ownerID int64) (reminder.Reminder, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if r.OwnerID != ownerID {
		return reminder.Reminder{}, ErrForbidden
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, ownerID int64) ([]reminder.Reminder, error) {
	return s.store.ListActive(ctx, ownerID, s.clock.Now())
}

func (s *Service) Today(ctx context.Context, ownerID int64) ([]reminder.Reminder, error) {
	return s.store.ListToday(ctx, ownerID, s.clock.Now())
}

// EditInput holds the optional changes of one edit. Nil means keep.
type EditInput struct {
	Name       *string
	TimePhrase *string
}

// Edit renames and/or reschedules a reminder. A new time replaces the pending
// timer: the old one is cancelled before the store changes and exactly one
// timer is armed for the stored result.
func (s *Service) Edit(ctx context.Context, id string, ownerID int64, in EditInput) (reminder.Reminder, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return reminder.Reminder{}, err
	}

	var p storage.Patch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return reminder.Reminder{}, fmt.Errorf("%w: name is required", ErrInvalid)
		}
		p.Name = &name
	}
	if in.TimePhrase != nil {
		now := s.clock.Now()
		res, err := s.resolver.Resolve(*in.TimePhrase, now, s.locale)
		if err != nil {
			return reminder.Reminder{}, err
		}
		rec := cur.Recurrence
		if res.Recurrence != reminder.None {
			rec = res.Recurrence
		}
		at := res.At
		if !at.After(now) {
			return reminder.Reminder{}, fmt.Errorf("%w: time is not in the future", ErrInvalid)
		}
		p.ScheduledAt, p.NextRun, p.Recurrence = &at, &at, &rec
	}
	if p.Empty() {
		return cur, nil
	}

	if p.NextRun == nil {
		// Name only: a pending fire reloads the row, the timer stays.
		return s.store.Update(ctx, id, ownerID, p)
	}

	wasArmed := s.sched.Cancel(id)
	updated, err := s.store.Update(ctx, id, ownerID, p)
	if err != nil {
		if wasArmed {
			s.sched.Arm(cur)
		}
		return reminder.Reminder{}, err
	}
	s.sched.Arm(updated)
	s.log.Info("reminder rescheduled",
		logx.String("reminder", id), logx.Time("from", cur.NextRun), logx.Time("to", updated.NextRun))
	return updated, nil
}

// Delete cancels the pending timer, then removes the reminder.
func (s *Service) Delete(ctx context.Context, id string, ownerID int64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	wasArmed := s.sched.Cancel(id)
	if err := s.store.Delete(ctx, id, ownerID); err != nil {
		if wasArmed && !errors.Is(err, ErrNotFound) {
			s.sched.Arm(cur)
		}
		return err
	}
	s.log.Info("reminder deleted", logx.String("reminder", id), logx.Int64("owner", ownerID))
	return nil
}

// Recover arms every reminder still due in the future, once each. Recurring
// reminders whose next run passed while the process was down are reported,
// not re-armed.
func (s *Service) Recover(ctx context.Context) (int, error) {
	now := s.clock.Now()
	pending, err := s.store.ListPending(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}
	armed := 0
	for _, r := range pending {
		if s.sched.ArmIfIdle(r) {
			armed++
		}
	}

	overdue, err := s.store.ListOverdueRecurring(ctx, now)
	if err != nil {
		s.log.Warn("recover: overdue scan failed", logx.Err(err))
	} else if len(overdue) > 0 {
		s.log.Warn("recurring reminders missed while offline are not re-armed",
			logx.Int("count", len(overdue)), logx.String("first", overdue[0].ID))
	}
	s.log.Info("reminders recovered", logx.Int("armed", armed), logx.Int("pending", len(pending)))
	return armed, nil
}
