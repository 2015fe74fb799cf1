package app

import (
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	"remindbot/internal/transport/telegram"
	"remindbot/internal/weather"
	logx "remindbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
		Sentry: logx.SentryConfig{
			DSN:         cfg.Logging.Sentry.DSN,
			Environment: cfg.Logging.Sentry.Environment,
			MinLevel:    cfg.Logging.Sentry.MinLevel,
		},
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: poll,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, nil
}

func mapStorageConfig(cfg *config.Config, loc *time.Location) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		DSN:         strings.TrimSpace(cfg.Storage.DSN),
		BusyTimeout: busy,
		Location:    loc,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config, loc *time.Location) (scheduler.Config, error) {
	deliver, err := config.ParseDurationField("scheduler.deliver_timeout", cfg.Scheduler.DeliverTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	retention, err := config.ParseDurationField("scheduler.retention", cfg.Scheduler.Retention)
	if err != nil {
		return scheduler.Config{}, err
	}
	// Zero values pick the scheduler defaults.
	return scheduler.Config{
		Location:       loc,
		DeliverTimeout: deliver,
		PruneSchedule:  cfg.Scheduler.PruneSpec(),
		Retention:      retention,
	}, nil
}

func mapWeatherConfig(cfg *config.Config) (weather.Config, error) {
	timeout, err := config.ParseDurationOrDefault("weather.timeout", cfg.Weather.Timeout, 10*time.Second)
	if err != nil {
		return weather.Config{}, err
	}
	return weather.Config{
		APIKey:  cfg.Weather.APIKey,
		BaseURL: cfg.Weather.BaseURL,
		Lang:    cfg.Weather.Lang,
		Timeout: timeout,
	}, nil
}
