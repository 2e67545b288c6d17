package config

// Config is the bot's configuration file (JSON or YAML). Every field may be
// overridden from the environment, see ApplyEnv.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	// Timezone is an IANA zone used to parse reminder input and render
	// dates. Defaults to the host's local zone.
	Timezone string `json:"timezone,omitempty"`

	Chat     ChatConfig     `json:"chat"`
	Canvas   CanvasConfig   `json:"canvas"`
	Storage  StorageConfig  `json:"storage"`
	Schedule ScheduleConfig `json:"schedule"`
	Notifier NotifierConfig `json:"notifier"`
	Logging  LoggingConfig  `json:"logging"`
}

// ChatConfig selects the chat platform and the channel alerts go to.
type ChatConfig struct {
	Driver    string `json:"driver"` // "telegram" | "slack"
	ChannelID string `json:"channel_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
	// RoleID is mentioned on every reminder alert (Slack user group id on
	// Slack; ignored when empty).
	RoleID string `json:"role_id,omitempty"`

	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
}

type TelegramConfig struct {
	Token       string `json:"token,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type SlackConfig struct {
	BotToken        string `json:"bot_token,omitempty"`
	SigningSecret   string `json:"signing_secret,omitempty"`
	ListenAddr      string `json:"listen_addr,omitempty"`
	CommandPath     string `json:"command_path,omitempty"`
	InteractionPath string `json:"interaction_path,omitempty"`
}

type CanvasConfig struct {
	BaseURL  string `json:"base_url"`
	Token    string `json:"token,omitempty"`
	CourseID string `json:"course_id"`
	Timeout  string `json:"timeout,omitempty"`
}

// StorageConfig controls where the course document lives.
//
// Example:
//
//	"storage": { "driver": "file", "dir": "./data" }
type StorageConfig struct {
	Driver      string `json:"driver"` // "file" | "sqlite"
	Dir         string `json:"dir,omitempty"`
	Path        string `json:"path,omitempty"`         // sqlite database file
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// ScheduleConfig holds the two periodic jobs. Specs accept durations
// ("1s"), HH:MM intervals and cron expressions.
type ScheduleConfig struct {
	Reminders       string `json:"reminders"`
	Sync            string `json:"sync"`
	ReminderTimeout string `json:"reminder_timeout,omitempty"`
	SyncTimeout     string `json:"sync_timeout,omitempty"`
}

type NotifierConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// IsEnabled treats an omitted flag as enabled.
func (n NotifierConfig) IsEnabled() bool { return n.Enabled == nil || *n.Enabled }

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingChat mirrors warnings into the alert channel.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Chat: ChatConfig{
			Driver: "telegram",
			Telegram: TelegramConfig{
				PollTimeout: "10s",
			},
			Slack: SlackConfig{
				ListenAddr:      ":3000",
				CommandPath:     "/slack/commands",
				InteractionPath: "/slack/interactions",
			},
		},
		Canvas: CanvasConfig{
			Timeout: "30s",
		},
		Storage: StorageConfig{
			Driver: "file",
			Dir:    "data",
		},
		Schedule: ScheduleConfig{
			Reminders:       "1s",
			Sync:            "10m",
			ReminderTimeout: "30s",
			SyncTimeout:     "2m",
		},
		Notifier: NotifierConfig{
			RatePerSec:    1,
			RetryMax:      3,
			RetryBase:     "500ms",
			RetryMaxDelay: "10s",
			SendTimeout:   "15s",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Chat: LoggingChat{
				MinLevel:   "warn",
				RatePerSec: 1,
			},
		},
	}
}
