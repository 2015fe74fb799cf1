package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/config"
)

func TestMapConfigs(t *testing.T) {
	cfg := &config.Config{
		Telegram: config.TelegramConfig{Token: "t", PollTimeout: "20s", RatePerSec: 10},
		Logging: config.LoggingConfig{
			Level:    "debug",
			Telegram: config.LoggingTelegram{Enabled: true, MinLevel: "error", RatePerSec: 2},
			Sentry:   config.LoggingSentry{DSN: "https://k@sentry.example/1", Environment: "prod"},
		},
		Storage:   config.StorageConfig{Driver: "Postgres", DSN: " postgres://x ", BusyTimeout: ""},
		Scheduler: config.SchedulerConfig{DeliverTimeout: "45s", Retention: "48h", PruneSchedule: "off"},
		Weather:   config.WeatherConfig{APIKey: "k", Lang: "en"},
	}

	tc, err := mapTelegramConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, tc.PollTimeout)
	assert.Equal(t, 10, tc.RatePerSec)

	lc := mapLogConfig(cfg)
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.Telegram.Enabled)
	assert.Equal(t, "prod", lc.Sentry.Environment)

	sc, err := mapStorageConfig(cfg, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "postgres", sc.Driver)
	assert.Equal(t, "postgres://x", sc.DSN)
	assert.Equal(t, 5*time.Second, sc.BusyTimeout)
	assert.Equal(t, time.UTC, sc.Location)

	schc, err := mapSchedulerConfig(cfg, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, schc.DeliverTimeout)
	assert.Equal(t, 48*time.Hour, schc.Retention)
	assert.Empty(t, schc.PruneSchedule)

	wc, err := mapWeatherConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, wc.Timeout)
	assert.Equal(t, "en", wc.Lang)
}

func TestMapConfigsRejectBadDurations(t *testing.T) {
	cfg := &config.Config{Telegram: config.TelegramConfig{PollTimeout: "forever"}}
	_, err := mapTelegramConfig(cfg)
	require.Error(t, err)

	cfg = &config.Config{Scheduler: config.SchedulerConfig{Retention: "a week"}}
	_, err = mapSchedulerConfig(cfg, time.UTC)
	require.Error(t, err)
}
