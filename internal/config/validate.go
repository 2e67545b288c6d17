package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error
	need := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Chat.Driver)) {
	case "telegram":
		need("chat.telegram.token (TELEGRAM_TOKEN)", c.Chat.Telegram.Token)
	case "slack":
		need("chat.slack.bot_token (SLACK_BOT_TOKEN)", c.Chat.Slack.BotToken)
		need("chat.slack.signing_secret (SLACK_SIGNING_SECRET)", c.Chat.Slack.SigningSecret)
	default:
		errs = append(errs, fmt.Errorf("chat.driver: unknown driver %q (want telegram or slack)", c.Chat.Driver))
	}
	need("chat.channel_id (CHANNEL_ID)", c.Chat.ChannelID)
	need("canvas.base_url (CANVAS_BASE_URL)", c.Canvas.BaseURL)
	need("canvas.token (CANVAS_TOKEN)", c.Canvas.Token)
	need("canvas.course_id (COURSE_ID)", c.Canvas.CourseID)

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	need("schedule.reminders", c.Schedule.Reminders)
	need("schedule.sync", c.Schedule.Sync)

	for path, raw := range map[string]string{
		"chat.telegram.poll_timeout": c.Chat.Telegram.PollTimeout,
		"canvas.timeout":             c.Canvas.Timeout,
		"storage.busy_timeout":       c.Storage.BusyTimeout,
		"schedule.reminder_timeout":  c.Schedule.ReminderTimeout,
		"schedule.sync_timeout":      c.Schedule.SyncTimeout,
		"notifier.retry_base":        c.Notifier.RetryBase,
		"notifier.retry_max_delay":   c.Notifier.RetryMaxDelay,
		"notifier.send_timeout":      c.Notifier.SendTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, defaulting to the host zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}
