package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotExist is returned by Read when no document has been written yet.
	ErrNotExist = errors.New("storage: document does not exist")
	ErrClosed   = errors.New("storage: closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": one JSON file per course under Dir (default)
//   - "sqlite": SQLite database at Path (default <Dir>/duebot.db)
type Config struct {
	Driver      string
	Dir         string
	Path        string
	CourseID    string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Provider reads and writes one serialized document.
type Provider interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, b []byte) error
	Close() error
}

// Quarantiner is implemented by providers that can set unreadable content
// aside before it is overwritten. It returns where the content went.
type Quarantiner interface {
	Quarantine(ctx context.Context) (string, error)
}
