// Package app wires the reminder bot together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/clock"
	"remindbot/internal/config"
	"remindbot/internal/dispatch"
	"remindbot/internal/eventbus"
	"remindbot/internal/intake"
	"remindbot/internal/reminders"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	"remindbot/internal/timeparse"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	"remindbot/internal/weather"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.Store
	adapter *telegram.Adapter
	sched   *scheduler.Scheduler
	svc     *reminders.Service
	router  *intake.Router

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Scheduler.LoadLocation()
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}

	tcfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(tcfg, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	// Telegram logging starts disabled so the first Apply does not run
	// without a target chat; the final config is applied once it is set.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(cfg.Telegram.LogChatID)
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))

	scfg, err := mapStorageConfig(cfg, loc)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, scfg, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	wcfg, err := mapWeatherConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	wx := weather.New(wcfg)

	schedCfg, err := mapSchedulerConfig(cfg, loc)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	bus := eventbus.New()
	clk := clock.Real{}
	disp := dispatch.New(ad, wx, root.With(logx.String("comp", "dispatch")))
	sched := scheduler.New(schedCfg, store, disp, clk, bus, root.With(logx.String("comp", "scheduler")))

	locale := cfg.Intake.LocaleOrDefault()
	svc := reminders.New(store, sched, timeparse.New(loc), clk, locale, root.With(logx.String("comp", "reminders")))
	router := intake.New(intake.Config{Location: loc}, svc, wx, ad, clk, root.With(logx.String("comp", "intake")))

	log.Info("app configured",
		logx.String("timezone", loc.String()),
		logx.String("storage", scfg.Driver),
		logx.String("locale", locale),
		logx.Bool("weather_key_set", strings.TrimSpace(wcfg.APIKey) != ""),
	)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		sched:   sched,
		svc:     svc,
		router:  router,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}
	// Timers are armed before polling starts so nothing due is missed.
	if _, err := a.svc.Recover(a.sup.Context()); err != nil {
		return err
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("intake.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	a.sup.Go0("telegram.menu.update", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 5*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, intake.Commands()); err != nil {
			a.log.Warn("menu commands update failed", logx.Err(err))
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{
					logx.String("type", e.Type),
					logx.String("reminder", e.ReminderID),
					logx.Int64("owner", e.OwnerID),
				}
				if e.Type == scheduler.EventFailed {
					a.log.Warn("reminder event", append(fields, logx.Any("data", e.Data))...)
				} else {
					a.log.Debug("reminder event", fields...)
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig applies what can change live (logging) and reports the rest.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.SetTelegramTarget(next.Telegram.LogChatID)
	a.logs.Apply(mapLogConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "scheduler", 5*time.Second, a.sched.Stop)
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max, so one component cannot
// stall the whole stop. A step that overruns keeps running in the background.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline passed)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
