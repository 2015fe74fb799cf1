// Package scheduler keeps one live timer per pending reminder. When a timer
// fires the reminder is reloaded, delivered, and then either retired (one-off)
// or advanced and re-armed (recurring).
//
// Every timer carries a version. Cancel and re-Arm bump it, so callbacks of
// superseded timers, including one already mid-delivery, become no-ops and
// never advance or re-arm.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/clock"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type entry struct {
	ver   uint64
	at    time.Time
	state State
	timer clock.Timer
}

type Scheduler struct {
	cfg     Config
	store   Store
	deliver Deliverer
	clock   clock.Clock
	log     logx.Logger
	bus     eventbus.Bus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	seq     uint64
	entries map[string]*entry
	stopped bool
	cron    *cron.Cron
}

func New(cfg Config, store Store, d Deliverer, clk clock.Clock, bus eventbus.Bus, log logx.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		store:   store,
		deliver: d,
		clock:   clk,
		log:     log,
		bus:     bus,
		ctx:     ctx,
		cancel:  cancel,
		entries: map[string]*entry{},
	}
}

// Arm schedules r at r.NextRun, replacing any timer it already has.
// A due or past NextRun fires on a zero-delay timer.
func (s *Scheduler) Arm(r reminder.Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.armLocked(r)
}

// ArmIfIdle arms r only when no timer exists for it. It reports whether it armed.
func (s *Scheduler) ArmIfIdle(r reminder.Reminder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, ok := s.entries[r.ID]; ok {
		return false
	}
	s.armLocked(r)
	return true
}

func (s *Scheduler) armLocked(r reminder.Reminder) {
	if old, ok := s.entries[r.ID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	s.seq++
	ver := s.seq
	delay := max(r.NextRun.Sub(s.clock.Now()), 0)
	e := &entry{ver: ver, at: r.NextRun, state: StateArmed}
	s.entries[r.ID] = e
	id := r.ID
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(id, ver) })

	s.log.Debug("reminder armed", logx.String("reminder", id), logx.Time("at", r.NextRun), logx.Duration("in", delay))
	s.publish(EventArmed, r, map[string]any{"next_run": r.NextRun})
}

// Cancel drops the reminder's timer. It reports whether one existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if ok {
		s.log.Debug("reminder cancelled", logx.String("reminder", id))
		s.publish(EventCancelled, reminder.Reminder{ID: id}, nil)
	}
	return ok
}

func (s *Scheduler) Armed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// State reports the live state of id; ok is false when nothing is scheduled.
func (s *Scheduler) State(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// NextRun is the instant the live timer for id targets.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// begin claims the timer (id, ver) for firing.
func (s *Scheduler) begin(id string, ver uint64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.ver != ver || s.stopped {
		return time.Time{}, false
	}
	e.state = StateFiring
	e.timer = nil
	s.wg.Add(1)
	return e.at, true
}

func (s *Scheduler) current(id string, ver uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && e.ver == ver
}

// drop removes the entry only if it still belongs to ver.
func (s *Scheduler) drop(id string, ver uint64) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok && e.ver == ver {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

func (s *Scheduler) rearm(ver uint64, r reminder.Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[r.ID]
	if !ok || e.ver != ver {
		return
	}
	if s.stopped {
		delete(s.entries, r.ID)
		return
	}
	s.armLocked(r)
}

func (s *Scheduler) fire(id string, ver uint64) {
	at, ok := s.begin(id, ver)
	if !ok {
		return
	}
	defer s.wg.Done()
	log := s.log.With(logx.String("reminder", id))
	defer func() {
		if p := recover(); p != nil {
			log.Error("reminder fire panicked", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			s.drop(id, ver)
		}
	}()

	ctx := s.ctx
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Debug("reminder gone before firing")
		} else {
			log.Error("reminder reload failed", logx.Err(err))
			s.publish(EventFailed, reminder.Reminder{ID: id}, map[string]any{"err": err.Error()})
		}
		s.drop(id, ver)
		return
	}
	if !cur.NextRun.Equal(at) {
		// Moved without going through Arm; follow the stored value.
		log.Warn("stale timer, re-arming from store", logx.Time("timer_at", at), logx.Time("next_run", cur.NextRun))
		if cur.NextRun.After(at) {
			s.rearm(ver, cur)
		} else {
			s.drop(id, ver)
		}
		return
	}

	s.publish(EventFired, cur, nil)
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DeliverTimeout)
	err = s.deliver.Deliver(dctx, cur)
	cancel()
	if err != nil {
		log.Error("reminder delivery failed", logx.Err(err))
		s.publish(EventFailed, cur, map[string]any{"err": err.Error()})
	} else {
		log.Info("reminder delivered", logx.Int64("owner", cur.OwnerID), logx.String("recurrence", cur.Recurrence.String()))
	}

	if !cur.Recurring() {
		s.drop(id, ver)
		s.publish(EventRetired, cur, nil)
		return
	}

	if !s.current(id, ver) {
		log.Debug("reminder changed during delivery, not advancing")
		return
	}
	next := cur.Recurrence.FirstAfter(cur.Recurrence.Next(cur.NextRun), s.clock.Now())
	if err := s.store.Advance(ctx, id, cur.NextRun, next); err != nil {
		switch {
		case errors.Is(err, storage.ErrStale), errors.Is(err, storage.ErrNotFound):
			log.Debug("reminder changed during delivery, not re-arming", logx.Err(err))
		default:
			log.Error("reminder advance failed", logx.Err(err))
			s.publish(EventFailed, cur, map[string]any{"err": err.Error()})
		}
		s.drop(id, ver)
		return
	}
	prev := cur.NextRun
	cur.NextRun = next
	s.publish(EventAdvanced, cur, map[string]any{"from": prev, "to": next})
	s.rearm(ver, cur)
}

func (s *Scheduler) publish(typ string, r reminder.Reminder, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), ReminderID: r.ID, OwnerID: r.OwnerID, Data: data})
}

// Start registers the housekeeping job. Timers work without Start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil || s.stopped || s.cfg.PruneSchedule == "" {
		return nil
	}
	c := cron.New(cron.WithLocation(s.cfg.Location))
	if _, err := c.AddFunc(s.cfg.PruneSchedule, func() { _, _ = s.Prune(ctx) }); err != nil {
		return fmt.Errorf("scheduler: prune schedule %q: %w", s.cfg.PruneSchedule, err)
	}
	c.Start()
	s.cron = c
	s.log.Info("housekeeping scheduled", logx.String("spec", s.cfg.PruneSchedule), logx.Duration("retention", s.cfg.Retention))
	return nil
}

// Prune deletes delivered one-off reminders older than the retention window.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	before := s.clock.Now().Add(-s.cfg.Retention)
	n, err := s.store.PruneDelivered(ctx, before)
	if err != nil {
		s.log.Error("prune failed", logx.Err(err))
		return 0, err
	}
	if n > 0 {
		s.log.Info("pruned delivered reminders", logx.Int64("count", n), logx.Time("before", before))
	}
	return n, nil
}

// Stop cancels every timer and waits for in-flight deliveries or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	// Firing entries stay so an in-flight recurring delivery still persists its advance.
	for id, e := range s.entries {
		if e.state == StateFiring {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, id)
	}
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
	s.cancel()
	return nil
}
