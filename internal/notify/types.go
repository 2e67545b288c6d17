package notify

import (
	"context"
	"time"
)

//go:generate mockgen -source=types.go -destination=../mocks/notifier_mock.go -package=mocks

// Notifier emits one formatted message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type Kind string

const (
	KindAssignmentReminder Kind = "assignment_reminder"
	KindCustomReminder     Kind = "custom_reminder"
	KindAssignmentNew      Kind = "assignment_new"
	KindAssignmentUpdated  Kind = "assignment_updated"
	KindText               Kind = "text"
)

// Message is a platform-neutral alert. Mention asks the service to ping the
// configured role and every opted-in user.
type Message struct {
	Kind        Kind
	Content     string
	Title       string
	Description string
	Fields      []Field
	Color       int
	Mention     bool
	Footer      string
	Timestamp   time.Time
}

type Field struct {
	Name   string
	Value  string
	URL    string
	Inline bool
}

// Config controls delivery.
type Config struct {
	Enabled       bool
	RoleID        string
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

type HistoryItem struct {
	At    time.Time
	Kind  Kind
	Title string
	Err   string
}

// Stats are cumulative counters since start.
type Stats struct {
	Sent   int
	Failed int
}
