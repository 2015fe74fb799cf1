package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type matchKind int

const (
	kindAbsolute  matchKind = iota
	kindTimeOfDay           // date implied as today
	kindDayMonth            // year implied as the current one
)

// defaultHour is used when a phrase names a day but no time.
const defaultHour = 9

var (
	reClock    = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm|утра|дня|вечера|ночи|часов|часа|час|ч)?$`)
	reRelative = regexp.MustCompile(`^(?:через|in)\s+(?:(\d+)\s*)?([a-zа-яё]+)$`)
	reDayWord  = regexp.MustCompile(`^(сегодня|послезавтра|завтра|today|tomorrow|day after tomorrow)(?:\s+(.+))?$`)
	reISODate  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[ t](.+))?$`)
	reNumDate  = regexp.MustCompile(`^(\d{1,2})[./](\d{1,2})(?:[./](\d{4}|\d{2}))?(?:\s+(.+))?$`)
	reDayFirst = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-zа-яё]+)\.?(?:\s+(\d{4})(?:\s*(?:года|г\.?))?)?(?:\s+(.+))?$`)
	reMonFirst = regexp.MustCompile(`^([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?(?:\s+(\d{4}))?(?:\s+(.+))?$`)
)

// parseRules tries the built-in grammar. text is already lower-cased.
func parseRules(text string, now time.Time) (time.Time, matchKind, bool) {
	if t, ok := parseRelative(text, now); ok {
		return t, kindAbsolute, true
	}
	if t, ok := parseDayWord(text, now); ok {
		return t, kindAbsolute, true
	}
	if t, ok := parseWeekday(text, now); ok {
		return t, kindAbsolute, true
	}
	if t, kind, ok := parseNumericDate(text, now); ok {
		return t, kind, true
	}
	if t, kind, ok := parseMonthDate(text, now); ok {
		return t, kind, true
	}
	if h, m, ok := parseClock(text); ok {
		return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location()), kindTimeOfDay, true
	}
	return time.Time{}, kindAbsolute, false
}

// parseClock reads "9:30", "в 9", "at 8pm", "в 7 вечера". A bare hour with
// neither prefix nor suffix is rejected as ambiguous.
func parseClock(s string) (int, int, bool) {
	s = strings.TrimSpace(s)
	prefixed := false
	for _, p := range []string{"в ", "во ", "at ", "к ", "@"} {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(strings.TrimPrefix(s, p))
			prefixed = true
			break
		}
	}
	m := reClock.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	if m[2] == "" && m[3] == "" && !prefixed {
		return 0, 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mm := 0
	if m[2] != "" {
		mm, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm", "дня", "вечера":
		if h < 12 {
			h += 12
		}
	case "am", "ночи", "утра":
		if h == 12 {
			h = 0
		}
	}
	if h > 23 || mm > 59 {
		return 0, 0, false
	}
	return h, mm, true
}

// clockOrDefault parses an optional trailing time; empty means defaultHour.
func clockOrDefault(rest string) (int, int, bool) {
	if strings.TrimSpace(rest) == "" {
		return defaultHour, 0, true
	}
	return parseClock(rest)
}

func parseRelative(text string, now time.Time) (time.Time, bool) {
	m := reRelative.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	n := 1
	if m[1] != "" {
		n, _ = strconv.Atoi(m[1])
	}
	if n <= 0 {
		return time.Time{}, false
	}
	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "мин"), strings.HasPrefix(unit, "min"):
		return now.Add(time.Duration(n) * time.Minute), true
	case strings.HasPrefix(unit, "час"), unit == "ч", strings.HasPrefix(unit, "hour"), unit == "h":
		return now.Add(time.Duration(n) * time.Hour), true
	case strings.HasPrefix(unit, "дн"), unit == "день", strings.HasPrefix(unit, "day"):
		return now.AddDate(0, 0, n), true
	case strings.HasPrefix(unit, "недел"), strings.HasPrefix(unit, "week"):
		return now.AddDate(0, 0, 7*n), true
	case strings.HasPrefix(unit, "месяц"), strings.HasPrefix(unit, "month"):
		return now.AddDate(0, n, 0), true
	}
	return time.Time{}, false
}

func parseDayWord(text string, now time.Time) (time.Time, bool) {
	m := reDayWord.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	offset := 0
	switch m[1] {
	case "завтра", "tomorrow":
		offset = 1
	case "послезавтра", "day after tomorrow":
		offset = 2
	}
	h, mm, ok := clockOrDefault(m[2])
	if !ok {
		return time.Time{}, false
	}
	return time.Date(now.Year(), now.Month(), now.Day()+offset, h, mm, 0, 0, now.Location()), true
}

var weekdays = map[string]time.Weekday{
	"понедельник": time.Monday, "вторник": time.Tuesday, "среда": time.Wednesday, "среду": time.Wednesday,
	"четверг": time.Thursday, "пятница": time.Friday, "пятницу": time.Friday,
	"суббота": time.Saturday, "субботу": time.Saturday, "воскресенье": time.Sunday,
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday, "sunday": time.Sunday,
	"mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday, "thu": time.Thursday,
	"fri": time.Friday, "sat": time.Saturday, "sun": time.Sunday,
}

// parseWeekday picks the nearest such weekday strictly after now.
func parseWeekday(text string, now time.Time) (time.Time, bool) {
	s := text
	for _, p := range []string{"во ", "в ", "on ", "next "} {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			break
		}
	}
	word, rest, _ := strings.Cut(s, " ")
	wd, ok := weekdays[word]
	if !ok {
		return time.Time{}, false
	}
	h, mm, ok := clockOrDefault(rest)
	if !ok {
		return time.Time{}, false
	}
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	t := time.Date(now.Year(), now.Month(), now.Day()+days, h, mm, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 7)
	}
	return t, true
}

func parseNumericDate(text string, now time.Time) (time.Time, matchKind, bool) {
	var (
		y, mo, d int
		rest     string
		kind     = kindAbsolute
	)
	if m := reISODate.FindStringSubmatch(text); m != nil {
		y, _ = strconv.Atoi(m[1])
		mo, _ = strconv.Atoi(m[2])
		d, _ = strconv.Atoi(m[3])
		rest = m[4]
	} else if m := reNumDate.FindStringSubmatch(text); m != nil {
		d, _ = strconv.Atoi(m[1])
		mo, _ = strconv.Atoi(m[2])
		switch {
		case m[3] == "":
			y = now.Year()
			kind = kindDayMonth
		case len(m[3]) == 2:
			y, _ = strconv.Atoi(m[3])
			y += 2000
		default:
			y, _ = strconv.Atoi(m[3])
		}
		rest = m[4]
	} else {
		return time.Time{}, kind, false
	}
	h, mm, ok := clockOrDefault(rest)
	if !ok {
		return time.Time{}, kind, false
	}
	t, ok := makeDate(y, time.Month(mo), d, h, mm, now.Location())
	return t, kind, ok
}

func parseMonthDate(text string, now time.Time) (time.Time, matchKind, bool) {
	var day, year, rest, month string
	if m := reDayFirst.FindStringSubmatch(text); m != nil {
		day, month, year, rest = m[1], m[2], m[3], m[4]
	} else if m := reMonFirst.FindStringSubmatch(text); m != nil {
		month, day, year, rest = m[1], m[2], m[3], m[4]
	} else {
		return time.Time{}, kindAbsolute, false
	}
	mo, ok := monthByName(month)
	if !ok {
		return time.Time{}, kindAbsolute, false
	}
	d, _ := strconv.Atoi(day)
	kind := kindAbsolute
	y := now.Year()
	if year != "" {
		y, _ = strconv.Atoi(year)
	} else {
		kind = kindDayMonth
	}
	h, mm, ok := clockOrDefault(rest)
	if !ok {
		return time.Time{}, kind, false
	}
	t, ok := makeDate(y, mo, d, h, mm, now.Location())
	return t, kind, ok
}

var monthStems = []struct {
	stem  string
	month time.Month
}{
	{"янв", time.January}, {"фев", time.February}, {"мар", time.March}, {"апр", time.April},
	{"мая", time.May}, {"май", time.May}, {"июн", time.June}, {"июл", time.July},
	{"авг", time.August}, {"сен", time.September}, {"окт", time.October}, {"ноя", time.November},
	{"дек", time.December},
	{"jan", time.January}, {"feb", time.February}, {"mar", time.March}, {"apr", time.April},
	{"may", time.May}, {"jun", time.June}, {"jul", time.July}, {"aug", time.August},
	{"sep", time.September}, {"oct", time.October}, {"nov", time.November}, {"dec", time.December},
}

func monthByName(word string) (time.Month, bool) {
	r := []rune(word)
	if len(r) < 3 {
		return 0, false
	}
	prefix := string(r[:3])
	for _, s := range monthStems {
		if s.stem == prefix {
			return s.month, true
		}
	}
	return 0, false
}

// makeDate rejects dates that time.Date would normalise (31.02 and the like).
func makeDate(y int, mo time.Month, d, h, mm int, loc *time.Location) (time.Time, bool) {
	if mo < time.January || mo > time.December || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, mo, d, h, mm, 0, 0, loc)
	if t.Day() != d || t.Month() != mo {
		return time.Time{}, false
	}
	return t, true
}
