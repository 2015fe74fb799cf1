package intake

import (
	"sync"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/timeparse"
)

// State is the step a user's conversation is waiting on.
type State int

const (
	Idle State = iota
	AwaitName
	AwaitCity
	AwaitTime
	AwaitAttachment
	EditName
	EditTime
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitName:
		return "await_name"
	case AwaitCity:
		return "await_city"
	case AwaitTime:
		return "await_time"
	case AwaitAttachment:
		return "await_attachment"
	case EditName:
		return "edit_name"
	case EditTime:
		return "edit_time"
	}
	return "unknown"
}

// session is the draft collected so far. It only lives in memory; an
// abandoned conversation is dropped after sessionTTL.
type session struct {
	state    State
	name     string
	city     string
	weather  bool
	resolved *timeparse.Result

	editID   string
	editName *string

	touched time.Time
}

const sessionTTL = 30 * time.Minute

type sessions struct {
	mu sync.Mutex
	m  map[int64]*session
}

func newSessions() *sessions { return &sessions{m: map[int64]*session{}} }

// get returns a copy of the user's session; expired sessions read as Idle.
func (s *sessions) get(userID int64, now time.Time) session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[userID]
	if !ok || now.Sub(cur.touched) > sessionTTL {
		delete(s.m, userID)
		return session{}
	}
	return *cur
}

func (s *sessions) put(userID int64, sess session, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.state == Idle {
		delete(s.m, userID)
		return
	}
	sess.touched = now
	s.m[userID] = &sess
}

func (s *sessions) reset(userID int64) {
	s.mu.Lock()
	delete(s.m, userID)
	s.mu.Unlock()
}

// sweep drops expired sessions and returns how many were removed.
func (s *sessions) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.m {
		if now.Sub(sess.touched) > sessionTTL {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func recurrenceLabel(r reminder.Recurrence) string {
	switch r {
	case reminder.Daily:
		return "ежедневно"
	case reminder.Monthly:
		return "ежемесячно"
	}
	return ""
}
