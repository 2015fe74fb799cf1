// Package dispatch renders a due reminder and sends it to its owner.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"remindbot/internal/reminder"
	"remindbot/internal/weather"
	logx "remindbot/pkg/logx"
)

// ErrSendFailed wraps messaging gateway failures.
var ErrSendFailed = errors.New("send failed")

// Gateway sends messages to a user. Attachment refs are opaque to callers.
type Gateway interface {
	SendText(ctx context.Context, to int64, text string) error
	SendPhoto(ctx context.Context, to int64, ref, caption string) error
	SendDocument(ctx context.Context, to int64, ref, caption string) error
	SendAudio(ctx context.Context, to int64, ref, caption string) error
}

type WeatherLookup interface {
	Current(ctx context.Context, city string) (weather.Report, error)
}

type Dispatcher struct {
	gw      Gateway
	weather WeatherLookup
	log     logx.Logger
}

func New(gw Gateway, w WeatherLookup, log logx.Logger) *Dispatcher {
	return &Dispatcher{gw: gw, weather: w, log: log}
}

// Deliver sends r once. Weather lookup failures are delivered as a notice;
// only gateway failures are returned.
func (d *Dispatcher) Deliver(ctx context.Context, r reminder.Reminder) error {
	var err error
	switch {
	case r.IsWeather:
		err = d.gw.SendText(ctx, r.OwnerID, d.weatherText(ctx, r))
	case r.Attachment != nil:
		caption := ReminderText(r)
		switch r.Attachment.Kind {
		case reminder.KindPhoto:
			err = d.gw.SendPhoto(ctx, r.OwnerID, r.Attachment.Ref, caption)
		case reminder.KindAudio:
			err = d.gw.SendAudio(ctx, r.OwnerID, r.Attachment.Ref, caption)
		default:
			err = d.gw.SendDocument(ctx, r.OwnerID, r.Attachment.Ref, caption)
		}
	default:
		err = d.gw.SendText(ctx, r.OwnerID, ReminderText(r))
	}
	if err != nil {
		return fmt.Errorf("%w: reminder %s: %w", ErrSendFailed, r.ID, err)
	}
	return nil
}

func (d *Dispatcher) weatherText(ctx context.Context, r reminder.Reminder) string {
	body := ""
	if d.weather == nil {
		body = weather.Notice(errors.New("weather lookup is not configured"))
	} else if rep, err := d.weather.Current(ctx, r.City); err != nil {
		d.log.Warn("weather lookup failed", logx.String("reminder", r.ID), logx.String("city", r.City), logx.Err(err))
		body = weather.Notice(err)
	} else {
		body = rep.Text()
	}
	return WeatherText(r.City, body)
}

func ReminderText(r reminder.Reminder) string {
	return "⏰ Напоминание: " + r.DisplayName()
}

func WeatherText(city, body string) string {
	return "⏰ Напоминание о погоде в " + city + ":\n" + body
}
