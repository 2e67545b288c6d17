package config

import (
	"reflect"
	"sort"
	"strings"

	logx "duebot/pkg/logx"
)

// Change summarises a reload. Sections listed in Restart only take effect
// after the process restarts.
type Change struct {
	Sections []string
	Restart  []string
	Fields   []logx.Field
}

// Diff compares two configs. Fields never include tokens or secrets.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) || oldCfg.Chat.RoleID != newCfg.Chat.RoleID {
		ch.Sections = append(ch.Sections, "notifier")
		ch.Fields = append(ch.Fields,
			logx.Bool("notifier.enabled", newCfg.Notifier.IsEnabled()),
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.retry_max", newCfg.Notifier.RetryMax),
			logx.Bool("notifier.role_set", newCfg.Chat.RoleID != ""),
		)
	}

	// Secrets are compared by presence and value but only logged as set/unset.
	oc, nc := oldCfg.Chat, newCfg.Chat
	oc.RoleID, nc.RoleID = "", ""
	if !reflect.DeepEqual(oc, nc) {
		ch.Sections = append(ch.Sections, "chat")
		ch.Restart = append(ch.Restart, "chat")
		ch.Fields = append(ch.Fields,
			logx.String("chat.driver", newCfg.Chat.Driver),
			logx.String("chat.channel_id", newCfg.Chat.ChannelID),
			logx.Bool("chat.token_set", newCfg.Chat.Telegram.Token != "" || newCfg.Chat.Slack.BotToken != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Canvas, newCfg.Canvas) {
		ch.Sections = append(ch.Sections, "canvas")
		ch.Restart = append(ch.Restart, "canvas")
		ch.Fields = append(ch.Fields,
			logx.String("canvas.base_url", strings.TrimSpace(newCfg.Canvas.BaseURL)),
			logx.String("canvas.course_id", newCfg.Canvas.CourseID),
			logx.Bool("canvas.token_set", newCfg.Canvas.Token != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		ch.Sections = append(ch.Sections, "storage")
		ch.Restart = append(ch.Restart, "storage")
		ch.Fields = append(ch.Fields, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) || oldCfg.Timezone != newCfg.Timezone {
		ch.Sections = append(ch.Sections, "schedule")
		ch.Restart = append(ch.Restart, "schedule")
		ch.Fields = append(ch.Fields,
			logx.String("schedule.reminders", newCfg.Schedule.Reminders),
			logx.String("schedule.sync", newCfg.Schedule.Sync),
			logx.String("timezone", newCfg.Timezone),
		)
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.Restart)
	return ch
}
