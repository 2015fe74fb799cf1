package eventbus

import "testing"

func TestSubscribeFiltersByType(t *testing.T) {
	b := New()
	fired, unsub := b.Subscribe(4, "reminder.fired")
	defer unsub()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: "reminder.armed", ReminderID: "a"})
	b.Publish(Event{Type: "reminder.fired", ReminderID: "a"})

	if got := len(fired); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	if e := <-fired; e.Type != "reminder.fired" || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
}

func TestPublishDropsWhenFullAndAfterUnsubscribe(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "x"})
	b.Publish(Event{Type: "x"})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("dropped=%d want 1", got)
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "x"})
}
