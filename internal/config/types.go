package config

import (
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Weather   WeatherConfig   `json:"weather"`
	Intake    IntakeConfig    `json:"intake"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied through BOT_TOKEN.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// LogChatID receives log lines when logging.telegram is enabled.
	LogChatID  int64 `json:"log_chat_id,omitempty"`
	RatePerSec int   `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
	Sentry   LoggingSentry   `json:"sentry"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// LoggingSentry forwards ERROR+ lines to Sentry when DSN is set (or SENTRY_DSN).
type LoggingSentry struct {
	DSN         string `json:"dsn,omitempty"`
	Environment string `json:"environment,omitempty"`
	MinLevel    string `json:"min_level,omitempty"`
}

// StorageConfig selects the reminder database.
//
// Example:
//
//	"storage": { "driver": "sqlite", "dsn": "./data/reminders.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	DSN         string `json:"dsn"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls reminder timers and housekeeping.
//
// Defaults (when fields are omitted/zero):
//   - timezone: local time
//   - deliver_timeout: "30s"
//   - prune_schedule: "17 4 * * *"
//   - retention: "168h"
type SchedulerConfig struct {
	Timezone       string `json:"timezone,omitempty"`
	DeliverTimeout string `json:"deliver_timeout,omitempty"`
	PruneSchedule  string `json:"prune_schedule,omitempty"`
	Retention      string `json:"retention,omitempty"`
}

type WeatherConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Lang    string `json:"lang,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type IntakeConfig struct {
	// Locale is "ru" (default) or "en"; it picks the fallback time parser.
	Locale string `json:"locale,omitempty"`
}

const DefaultPruneSchedule = "17 4 * * *"

// LoadLocation resolves scheduler.timezone. Empty means time.Local.
func (c SchedulerConfig) LoadLocation() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// PruneSpec returns the housekeeping cron spec; "off" disables the job.
func (c SchedulerConfig) PruneSpec() string {
	s := strings.TrimSpace(c.PruneSchedule)
	switch strings.ToLower(s) {
	case "":
		return DefaultPruneSchedule
	case "off", "disabled":
		return ""
	}
	return s
}

func (c IntakeConfig) LocaleOrDefault() string {
	switch l := strings.ToLower(strings.TrimSpace(c.Locale)); l {
	case "en":
		return l
	default:
		return "ru"
	}
}
