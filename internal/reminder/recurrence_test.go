package reminder

import (
	"errors"
	"testing"
	"time"
)

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{"leap february", time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC), 1, time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC)},
		{"plain february", time.Date(2023, 1, 31, 8, 0, 0, 0, time.UTC), 1, time.Date(2023, 2, 28, 8, 0, 0, 0, time.UTC)},
		{"thirty day month", time.Date(2024, 3, 31, 12, 30, 0, 0, time.UTC), 1, time.Date(2024, 4, 30, 12, 30, 0, 0, time.UTC)},
		{"year rollover", time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC), 1, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"no overflow", time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC), 2, time.Date(2024, 7, 10, 7, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AddMonths(tc.in, tc.n); !got.Equal(tc.want) {
				t.Fatalf("AddMonths(%v,%d)=%v want %v", tc.in, tc.n, got, tc.want)
			}
		})
	}
}

func TestRecurrenceNext(t *testing.T) {
	base := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	if got := Daily.Next(base); !got.Equal(time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("daily next=%v", got)
	}
	if got := Monthly.Next(base); !got.Equal(time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("monthly next=%v", got)
	}
	if got := None.Next(base); !got.Equal(base) {
		t.Fatalf("none next=%v", got)
	}
}

func TestFirstAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if got := Daily.FirstAfter(at, now); !got.Equal(time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("FirstAfter=%v", got)
	}
	if got := None.FirstAfter(at, now); !got.Equal(at) {
		t.Fatalf("none FirstAfter=%v", got)
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	cases := []struct {
		name string
		r    Reminder
		ok   bool
	}{
		{"plain", Reminder{OwnerID: 1, Name: "pills", NextRun: future}, true},
		{"missing name", Reminder{OwnerID: 1, NextRun: future}, false},
		{"weather without name", Reminder{OwnerID: 1, IsWeather: true, City: "Paris", NextRun: future}, true},
		{"weather without city", Reminder{OwnerID: 1, IsWeather: true, NextRun: future}, false},
		{"weather with attachment", Reminder{OwnerID: 1, IsWeather: true, City: "Paris", Attachment: &Attachment{Ref: "f", Kind: KindPhoto}, NextRun: future}, false},
		{"bad kind", Reminder{OwnerID: 1, Name: "x", Attachment: &Attachment{Ref: "f", Kind: "video"}, NextRun: future}, false},
		{"past", Reminder{OwnerID: 1, Name: "x", NextRun: now}, false},
		{"no owner", Reminder{Name: "x", NextRun: future}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate(now)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalid) {
				t.Fatalf("want ErrInvalid, got %v", err)
			}
		})
	}
}
