package logx

import (
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// sentryWriter reports lines at or above the configured level as Sentry events.
type sentryWriter struct{ svc *Service }

func (w *sentryWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *sentryWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}
	s.mu.Lock()
	min := s.sentryLevel
	s.mu.Unlock()
	if level < min {
		return len(p), nil
	}

	m, ok := decodeLine(p)
	if !ok {
		return len(p), nil
	}
	ev := sentry.NewEvent()
	ev.Level = sentryLevel(level)
	ev.Message = messageOf(m)
	for k, v := range m {
		switch k {
		case "time", "level", "message", "msg":
			continue
		case "comp":
			if c, ok := v.(string); ok {
				ev.Tags["comp"] = c
				continue
			}
		}
		ev.Extra[k] = v
	}
	sentry.CaptureEvent(ev)
	return len(p), nil
}

func sentryLevel(l zerolog.Level) sentry.Level {
	switch l {
	case zerolog.WarnLevel:
		return sentry.LevelWarning
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return sentry.LevelFatal
	case zerolog.ErrorLevel:
		return sentry.LevelError
	default:
		return sentry.LevelInfo
	}
}
