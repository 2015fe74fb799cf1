package reminder

import "time"

// Recurrence is the repeat cadence. The zero value means a one-off reminder.
type Recurrence string

const (
	None    Recurrence = ""
	Daily   Recurrence = "daily"
	Monthly Recurrence = "monthly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case None, Daily, Monthly:
		return true
	}
	return false
}

func (r Recurrence) String() string {
	if r == None {
		return "none"
	}
	return string(r)
}

// ParseRecurrence accepts the persisted forms ("" or "none", "daily", "monthly").
func ParseRecurrence(s string) (Recurrence, bool) {
	switch s {
	case "", "none":
		return None, true
	case "daily":
		return Daily, true
	case "monthly":
		return Monthly, true
	}
	return None, false
}

// Next is t plus one recurrence unit. For None it returns t.
func (r Recurrence) Next(t time.Time) time.Time {
	switch r {
	case Daily:
		return t.AddDate(0, 0, 1)
	case Monthly:
		return AddMonths(t, 1)
	}
	return t
}

// FirstAfter advances t by whole units until it is after now.
// None returns t unchanged.
func (r Recurrence) FirstAfter(t, now time.Time) time.Time {
	if r == None {
		return t
	}
	for i := 0; !t.After(now); i++ {
		t = r.Next(t)
		if i > 100000 {
			break
		}
	}
	return t
}

// AddMonths adds n calendar months keeping the wall clock. A day-of-month
// that does not exist in the target month is clamped to its last day, so
// Jan 31 + 1 month is Feb 29 in a leap year and Feb 28 otherwise.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
