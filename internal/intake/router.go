// Package intake runs the chat conversation: menus, commands, inline buttons
// and the per-user create/edit state machine.
package intake

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/clock"
	"remindbot/internal/reminder"
	"remindbot/internal/reminders"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/timeparse"
	kit "remindbot/internal/transport"
	"remindbot/internal/weather"
	logx "remindbot/pkg/logx"
)

// Sender is the part of the chat adapter the conversation needs.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

type Reminders interface {
	Preview(phrase string) (timeparse.Result, error)
	Create(ctx context.Context, in reminders.CreateInput) (reminder.Reminder, error)
	Get(ctx context.Context, id string, ownerID int64) (reminder.Reminder, error)
	List(ctx context.Context, ownerID int64) ([]reminder.Reminder, error)
	Today(ctx context.Context, ownerID int64) ([]reminder.Reminder, error)
	Edit(ctx context.Context, id string, ownerID int64, in reminders.EditInput) (reminder.Reminder, error)
	Delete(ctx context.Context, id string, ownerID int64) error
}

// CityChecker validates a weather city with a live lookup.
type CityChecker interface {
	Current(ctx context.Context, city string) (weather.Report, error)
}

type Config struct {
	// Location renders times to the user. Nil means time.Local.
	Location *time.Location
	// Workers is the number of update workers; one user's updates always
	// land on the same worker so they are handled in order.
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
}

type Router struct {
	cfg     Config
	svc     Reminders
	cities  CityChecker
	out     Sender
	clock   clock.Clock
	log     logx.Logger
	handler HandlerFunc

	sessions *sessions
}

func New(cfg Config, svc Reminders, cities CityChecker, out Sender, clk clock.Clock, log logx.Logger) *Router {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.Real{}
	}
	r := &Router{
		cfg:      cfg,
		svc:      svc,
		cities:   cities,
		out:      out,
		clock:    clk,
		log:      log,
		sessions: newSessions(),
	}
	r.handler = Chain(r.route,
		MWPanicRecover(log),
		MWRequestLog(log),
		MWTimeout(cfg.HandlerTimeout),
	)
	return r
}

// Commands is the bot command menu.
func Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "start", Description: "главное меню"},
		{Command: "new", Description: "создать напоминание"},
		{Command: "weather", Description: "напоминание о погоде"},
		{Command: "list", Description: "мои напоминания"},
		{Command: "today", Description: "напоминания на сегодня"},
		{Command: "cancel", Description: "отменить текущее действие"},
	}
}

// State reports where the user's conversation currently is.
func (r *Router) State(userID int64) State {
	return r.sessions.get(userID, r.clock.Now()).state
}

// Handle routes one update synchronously.
func (r *Router) Handle(ctx context.Context, up kit.Update) error {
	req := newRequest(up)
	if req == nil {
		return nil
	}
	return r.handler(ctx, req)
}

func newRequest(up kit.Update) *Request {
	switch up.Kind {
	case kit.UpdateMessage:
		m := up.Message
		if m == nil {
			return nil
		}
		return &Request{Update: up, ChatID: m.ChatID, FromID: m.FromID, Text: strings.TrimSpace(m.Text)}
	case kit.UpdateCallback:
		cb := up.Callback
		if cb == nil {
			return nil
		}
		return &Request{Update: up, ChatID: cb.ChatID, FromID: cb.FromID, Command: cb.Data}
	}
	return nil
}

// Run dispatches updates to a sharded worker pool until ctx is done or
// updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	queues := make([]chan kit.Update, r.cfg.Workers)
	for i := range queues {
		q := make(chan kit.Update, r.cfg.QueueSize)
		queues[i] = q
		idx := i
		sup.GoRestart("intake.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case up, ok := <-q:
					if !ok {
						return nil
					}
					r.work(c, idx, up)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	sweepCtx, stopSweep := context.WithCancel(sup.Context())
	sup.Go0("intake.session_sweep", func(context.Context) {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-t.C:
				if n := r.sessions.sweep(r.clock.Now()); n > 0 {
					r.log.Debug("expired sessions dropped", logx.Int("count", n))
				}
			}
		}
	})

	r.log.Info("intake started", logx.Int("workers", len(queues)))
	defer func() {
		// Workers drain what is queued, then exit on the closed channel.
		stopSweep()
		for _, q := range queues {
			close(q)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		r.log.Info("intake stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			req := newRequest(up)
			if req == nil {
				continue
			}
			q := queues[uint64(req.FromID)%uint64(len(queues))]
			select {
			case q <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (r *Router) work(ctx context.Context, idx int, up kit.Update) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in intake worker", logx.Int("worker", idx), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	_ = r.Handle(ctx, up)
}
