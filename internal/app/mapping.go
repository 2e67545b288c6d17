package app

import (
	"fmt"
	"strings"
	"time"

	"duebot/internal/canvas"
	"duebot/internal/config"
	"duebot/internal/notify"
	"duebot/internal/storage"
	"duebot/internal/transport"
	logx "duebot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Dir: sc.Dir, CourseID: cfg.Canvas.CourseID}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{
			Driver:      "sqlite",
			Dir:         sc.Dir,
			Path:        strings.TrimSpace(sc.Path),
			CourseID:    cfg.Canvas.CourseID,
			BusyTimeout: busy,
		}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) (notify.Config, error) {
	n := cfg.Notifier
	base, err := config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notify.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", n.SendTimeout, 15*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	if n.RatePerSec < 0 || n.RetryMax < 0 {
		return notify.Config{}, fmt.Errorf("notifier.rate_per_sec and notifier.retry_max must be >= 0")
	}
	return notify.Config{
		Enabled:       n.IsEnabled(),
		RoleID:        strings.TrimSpace(cfg.Chat.RoleID),
		RatePerSec:    max(1, n.RatePerSec),
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   sendTimeout,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapCanvasConfig(cfg *config.Config) (canvas.Config, error) {
	timeout, err := config.ParseDurationOrDefault("canvas.timeout", cfg.Canvas.Timeout, 30*time.Second)
	if err != nil {
		return canvas.Config{}, err
	}
	return canvas.Config{BaseURL: cfg.Canvas.BaseURL, Token: cfg.Canvas.Token, Timeout: timeout}, nil
}

func alertTarget(cfg *config.Config) transport.ChatTarget {
	return transport.ChatTarget{ChatID: strings.TrimSpace(cfg.Chat.ChannelID), ThreadID: cfg.Chat.ThreadID}
}
