package config

import (
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto cfg. Unset or blank
// variables leave the file value alone.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("CHAT_DRIVER", &cfg.Chat.Driver)
	str("CHANNEL_ID", &cfg.Chat.ChannelID)
	str("ROLE_ID", &cfg.Chat.RoleID)
	str("TELEGRAM_TOKEN", &cfg.Chat.Telegram.Token)
	str("SLACK_BOT_TOKEN", &cfg.Chat.Slack.BotToken)
	str("SLACK_SIGNING_SECRET", &cfg.Chat.Slack.SigningSecret)
	str("SLACK_LISTEN_ADDR", &cfg.Chat.Slack.ListenAddr)
	str("CANVAS_BASE_URL", &cfg.Canvas.BaseURL)
	str("CANVAS_TOKEN", &cfg.Canvas.Token)
	str("COURSE_ID", &cfg.Canvas.CourseID)
	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("DATA_DIR", &cfg.Storage.Dir)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("TZ_NAME", &cfg.Timezone)

	if v, ok := lookup("THREAD_ID"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Chat.ThreadID = n
		}
	}
}
