package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateCommand  UpdateKind = "command"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is an inbound command invocation. Text keeps the leading slash
// and the command name, e.g. "/ping on".
type Message struct {
	ID       string
	Chat     ChatTarget
	FromID   string
	FromName string
	Text     string
}

type Callback struct {
	ID        string
	Chat      ChatTarget
	FromID    string
	MessageID string
	Data      string
}

// ChatTarget addresses a chat/channel. IDs are kept as strings so Telegram's
// numeric chat ids and Slack's channel ids share one type.
type ChatTarget struct {
	ChatID   string
	ThreadID int
}

type MessageRef struct {
	Chat      ChatTarget
	MessageID string
}

// Button is an inline choice attached to a reply. Data is echoed back in a
// Callback when pressed.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	DisablePreview bool
	// Ephemeral asks the platform to show the reply only to UserID (Slack).
	// Platforms without ephemeral messages ignore it.
	Ephemeral bool
	UserID    string
	Buttons   [][]Button
}

// Mention lists who should be pinged with a card.
type Mention struct {
	RoleID  string
	UserIDs []string
}

func (m *Mention) Empty() bool {
	return m == nil || (m.RoleID == "" && len(m.UserIDs) == 0)
}

// Card is a platform-neutral rich message (Discord embed, Slack attachment,
// Telegram HTML block). All text is plain; adapters escape it.
type Card struct {
	Content     string
	Mention     *Mention
	Title       string
	Description string
	Fields      []CardField
	Color       int
	Footer      string
	Timestamp   time.Time
}

type CardField struct {
	Name   string
	Value  string
	URL    string // if set, Value is rendered as a link to URL
	Inline bool
}

type Adapter interface {
	Name() string

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendCard(ctx context.Context, to ChatTarget, card Card, opt *SendOptions) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
