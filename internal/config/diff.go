package config

import (
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// liveSections can be applied without a restart.
var liveSections = map[string]bool{"logging": true}

// SummarizeConfigChange returns the changed section names, safe attrs for
// logging (never secrets, only whether they are set) and the subset of
// changed sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := *oldCfg, *newCfg
	ts := strings.TrimSpace

	if ts(o.Telegram.Token) != ts(n.Telegram.Token) ||
		ts(o.Telegram.PollTimeout) != ts(n.Telegram.PollTimeout) ||
		o.Telegram.LogChatID != n.Telegram.LogChatID ||
		o.Telegram.RatePerSec != n.Telegram.RatePerSec {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", ts(n.Telegram.PollTimeout)),
			logx.Bool("telegram.log_chat_set", n.Telegram.LogChatID != 0),
			logx.Int("telegram.rate_per_sec", n.Telegram.RatePerSec),
		)
	}

	if o.Logging.Level != n.Logging.Level ||
		o.Logging.Console != n.Logging.Console ||
		o.Logging.File != n.Logging.File ||
		o.Logging.Telegram != n.Logging.Telegram ||
		o.Logging.Sentry != n.Logging.Sentry {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", n.Logging.Level),
			logx.Bool("logx.console", n.Logging.Console),
			logx.Bool("logx.file_enabled", n.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", n.Logging.Telegram.Enabled),
			logx.Bool("logx.sentry_set", ts(n.Logging.Sentry.DSN) != ""),
		)
	}

	if ts(o.Storage.Driver) != ts(n.Storage.Driver) ||
		ts(o.Storage.DSN) != ts(n.Storage.DSN) ||
		ts(o.Storage.BusyTimeout) != ts(n.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", ts(n.Storage.Driver)),
			logx.Bool("storage.dsn_set", ts(n.Storage.DSN) != ""),
			logx.String("storage.busy_timeout", ts(n.Storage.BusyTimeout)),
		)
	}

	if o.Scheduler != n.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", ts(n.Scheduler.Timezone)),
			logx.String("scheduler.deliver_timeout", ts(n.Scheduler.DeliverTimeout)),
			logx.String("scheduler.prune_schedule", n.Scheduler.PruneSpec()),
			logx.String("scheduler.retention", ts(n.Scheduler.Retention)),
		)
	}

	if o.Weather != n.Weather {
		changed = append(changed, "weather")
		attrs = append(attrs,
			logx.Bool("weather.api_key_set", ts(n.Weather.APIKey) != ""),
			logx.String("weather.lang", ts(n.Weather.Lang)),
			logx.String("weather.timeout", ts(n.Weather.Timeout)),
		)
	}

	if o.Intake.LocaleOrDefault() != n.Intake.LocaleOrDefault() {
		changed = append(changed, "intake")
		attrs = append(attrs, logx.String("intake.locale", n.Intake.LocaleOrDefault()))
	}

	sort.Strings(changed)
	for _, s := range changed {
		if !liveSections[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}
