// Package reminder holds the reminder entity and its recurrence arithmetic.
package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid marks a reminder that fails creation-time validation.
var ErrInvalid = errors.New("invalid reminder")

// DefaultWeatherName labels weather reminders created without a name.
const DefaultWeatherName = "Напоминание о погоде"

type AttachmentKind string

const (
	KindDocument AttachmentKind = "document"
	KindPhoto    AttachmentKind = "photo"
	KindAudio    AttachmentKind = "audio"
)

func (k AttachmentKind) Valid() bool {
	switch k {
	case KindDocument, KindPhoto, KindAudio:
		return true
	}
	return false
}

// Attachment is an opaque gateway file reference plus how to send it.
type Attachment struct {
	Ref  string
	Kind AttachmentKind
}

type Reminder struct {
	ID          string
	OwnerID     int64
	Name        string
	ScheduledAt time.Time
	Recurrence  Recurrence
	IsWeather   bool
	City        string
	Attachment  *Attachment
	NextRun     time.Time
	CreatedAt   time.Time
}

func (r Reminder) Recurring() bool { return r.Recurrence != None }

// Validate checks the creation invariants against now.
func (r Reminder) Validate(now time.Time) error {
	if r.OwnerID == 0 {
		return fmt.Errorf("%w: owner is required", ErrInvalid)
	}
	if r.IsWeather {
		if strings.TrimSpace(r.City) == "" {
			return fmt.Errorf("%w: weather reminder needs a city", ErrInvalid)
		}
		if r.Attachment != nil {
			return fmt.Errorf("%w: weather reminder cannot carry an attachment", ErrInvalid)
		}
	} else if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if r.Attachment != nil {
		if !r.Attachment.Kind.Valid() {
			return fmt.Errorf("%w: unknown attachment kind %q", ErrInvalid, r.Attachment.Kind)
		}
		if r.Attachment.Ref == "" {
			return fmt.Errorf("%w: attachment reference is empty", ErrInvalid)
		}
	}
	if !r.Recurrence.Valid() {
		return fmt.Errorf("%w: unknown recurrence %q", ErrInvalid, r.Recurrence)
	}
	if !r.NextRun.After(now) {
		return fmt.Errorf("%w: next run %s is not in the future", ErrInvalid, r.NextRun.Format(time.RFC3339))
	}
	return nil
}

// DisplayName falls back to the weather label for unnamed weather reminders.
func (r Reminder) DisplayName() string {
	if strings.TrimSpace(r.Name) == "" && r.IsWeather {
		return DefaultWeatherName
	}
	return r.Name
}
