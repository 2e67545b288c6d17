package storage

import (
	"errors"
	"path/filepath"
	"strings"

	logx "duebot/pkg/logx"
)

// Open initializes the configured provider.
func Open(cfg Config, log logx.Logger) (Provider, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "file"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.CourseID) == "" {
		return nil, errors.New("storage: course id is required")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = "data"
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = filepath.Join(cfg.Dir, "duebot.db")
		}
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
