// Package timeparse turns free-form Russian or English time phrases into an
// absolute instant plus a recurrence tag.
//
// Supported forms (case-insensitive, optional recurrence keyword anywhere):
//   - "08:00", "в 9:30", "at 8pm", "в 7 вечера"
//   - "завтра в 10:00", "послезавтра", "today at 18:00", "tomorrow 9am"
//   - "через 15 минут", "через час", "in 2 hours"
//   - "15 мая в 19:30", "May 15 at 7pm", "15 may"
//   - "05.06.2024 14:00", "5/6" (day first)
//   - "в понедельник в 10:00", "on friday 18:00"
//
// Anything else is handed to github.com/olebedev/when.
package timeparse

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/olebedev/when/rules/ru"

	"remindbot/internal/reminder"
)

// ErrUnresolved is returned when no future instant can be read from the phrase.
var ErrUnresolved = errors.New("time phrase not understood")

type Result struct {
	At         time.Time
	Recurrence reminder.Recurrence
}

// Resolver is safe for concurrent use.
type Resolver struct {
	loc      *time.Location
	fallback map[string]*when.Parser
}

// New builds a resolver interpreting wall-clock phrases in loc (time.Local when nil).
func New(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	ruP := when.New(nil)
	ruP.Add(ru.All...)
	ruP.Add(common.All...)
	enP := when.New(nil)
	enP.Add(en.All...)
	enP.Add(common.All...)
	return &Resolver{loc: loc, fallback: map[string]*when.Parser{"ru": ruP, "en": enP}}
}

func (r *Resolver) Location() *time.Location { return r.loc }

var recurrenceKeywords = []struct {
	word string
	rec  reminder.Recurrence
}{
	{"каждый день", reminder.Daily},
	{"ежедневно", reminder.Daily},
	{"every day", reminder.Daily},
	{"daily", reminder.Daily},
	{"каждый месяц", reminder.Monthly},
	{"ежемесячно", reminder.Monthly},
	{"every month", reminder.Monthly},
	{"monthly", reminder.Monthly},
}

var spaces = regexp.MustCompile(`\s+`)

// DetectRecurrence finds a recurrence keyword and returns the phrase without it.
func DetectRecurrence(raw string) (reminder.Recurrence, string) {
	text := strings.ToLower(strings.TrimSpace(raw))
	rec := reminder.None
	for _, kw := range recurrenceKeywords {
		if strings.Contains(text, kw.word) {
			if rec == reminder.None {
				rec = kw.rec
			}
			text = strings.ReplaceAll(text, kw.word, " ")
		}
	}
	text = strings.Trim(spaces.ReplaceAllString(text, " "), " ,.")
	return rec, text
}

// Resolve reads raw relative to now. locale ("ru" or "en") picks which
// fallback grammar is tried first.
func (r *Resolver) Resolve(raw string, now time.Time, locale string) (Result, error) {
	now = now.In(r.loc)
	rec, rest := DetectRecurrence(raw)

	if rest == "" {
		if rec == reminder.None {
			return Result{}, ErrUnresolved
		}
		// Bare keyword: same clock time, one unit from now.
		return Result{At: rec.Next(now.Truncate(time.Minute)), Recurrence: rec}, nil
	}

	at, kind, ok := parseRules(rest, now)
	if !ok {
		at, ok = r.parseFallback(rest, now, locale)
		kind = kindAbsolute
	}
	if !ok {
		return Result{}, ErrUnresolved
	}
	// Relative phrases inherit now's sub-second part; results are whole seconds.
	at = at.Truncate(time.Second)

	if rec != reminder.None {
		return Result{At: rec.FirstAfter(at, now), Recurrence: rec}, nil
	}

	if !at.After(now) {
		switch kind {
		case kindTimeOfDay:
			at = at.AddDate(0, 0, 1)
		case kindDayMonth:
			at = at.AddDate(1, 0, 0)
		}
	}
	if !at.After(now) {
		return Result{}, ErrUnresolved
	}
	return Result{At: at, Recurrence: reminder.None}, nil
}

func (r *Resolver) parseFallback(text string, now time.Time, locale string) (time.Time, bool) {
	order := []string{"ru", "en"}
	if strings.EqualFold(locale, "en") {
		order = []string{"en", "ru"}
	}
	for _, lang := range order {
		p := r.fallback[lang]
		res, err := p.Parse(text, now)
		if err != nil || res == nil {
			continue
		}
		return res.Time.In(r.loc), true
	}
	return time.Time{}, false
}
