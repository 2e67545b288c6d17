package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duebot/internal/transport"
	logx "duebot/pkg/logx"
)

type sent struct {
	to   transport.ChatTarget
	text string
	opt  transport.SendOptions
}

type recordingAdapter struct {
	mu       sync.Mutex
	sent     []sent
	answered []string
	notify   chan struct{}
}

func newRecordingAdapter() *recordingAdapter {
	return &recordingAdapter{notify: make(chan struct{}, 16)}
}

func (a *recordingAdapter) Name() string                                         { return "rec" }
func (a *recordingAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (a *recordingAdapter) Stop(context.Context) error                           { return nil }

func (a *recordingAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	a.sent = append(a.sent, sent{to: to, text: text, opt: *opt})
	a.mu.Unlock()
	a.notify <- struct{}{}
	return transport.MessageRef{Chat: to}, nil
}

func (a *recordingAdapter) SendCard(context.Context, transport.ChatTarget, transport.Card, *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, errors.New("unused")
}

func (a *recordingAdapter) AnswerCallback(_ context.Context, id string, _ string) error {
	a.mu.Lock()
	a.answered = append(a.answered, id)
	a.mu.Unlock()
	return nil
}

func (a *recordingAdapter) wait(t *testing.T) sent {
	t.Helper()
	select {
	case <-a.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("no reply sent")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sent[len(a.sent)-1]
}

func startRouter(t *testing.T, cmds []Command, cbs []CallbackRoute) (*recordingAdapter, chan transport.Update) {
	t.Helper()
	ad := newRecordingAdapter()
	r := NewRouter(ad, logx.Nop())
	r.SetRegistry(cmds, cbs)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ad, updates
}

func command(text string) transport.Update {
	return transport.Update{Kind: transport.UpdateCommand, Message: &transport.Message{
		Chat: transport.ChatTarget{ChatID: "c1"}, FromID: "u1", Text: text,
	}}
}

func TestRouterDispatchesCommand(t *testing.T) {
	var got *Request
	ad, updates := startRouter(t, []Command{{
		Name:    "echo",
		Aliases: []string{"e"},
		Handle: func(_ context.Context, r *Request) (Reply, error) {
			got = r
			return Reply{Text: "echo: " + r.Args}, nil
		},
	}}, nil)

	updates <- command("/e@duebot hello there")
	s := ad.wait(t)
	assert.Equal(t, "echo: hello there", s.text)
	assert.Equal(t, "c1", s.to.ChatID)
	assert.Equal(t, "u1", s.opt.UserID)
	assert.False(t, s.opt.Ephemeral)
	require.NotNil(t, got)
	assert.Equal(t, []string{"hello", "there"}, got.Tokens)
}

func TestRouterUserErrorIsEphemeral(t *testing.T) {
	ad, updates := startRouter(t, []Command{{
		Name: "fail",
		Handle: func(context.Context, *Request) (Reply, error) {
			return Reply{}, userErr("nope")
		},
	}, {
		Name: "boom",
		Handle: func(context.Context, *Request) (Reply, error) {
			panic("kaboom")
		},
	}}, nil)

	updates <- command("/fail")
	s := ad.wait(t)
	assert.Equal(t, "nope", s.text)
	assert.True(t, s.opt.Ephemeral)

	updates <- command("/boom")
	s = ad.wait(t)
	assert.Equal(t, internalErrMsg, s.text)
}

func TestRouterUnknownAndHelp(t *testing.T) {
	ad, updates := startRouter(t, []Command{{
		Name:        "ping",
		Description: "toggle pings",
		Usage:       "/ping on|off",
		Handle:      func(context.Context, *Request) (Reply, error) { return Reply{}, nil },
	}}, nil)

	updates <- command("/nope")
	assert.Equal(t, "Unknown command. Try /help", ad.wait(t).text)

	updates <- command("/help")
	help := ad.wait(t).text
	assert.Contains(t, help, "/ping - toggle pings")
	assert.Contains(t, help, "/ping on|off")
}

func TestRouterCallback(t *testing.T) {
	ad, updates := startRouter(t, nil, []CallbackRoute{{
		Prefix: "delrem",
		Handle: func(_ context.Context, r *Request) (Reply, error) {
			return Reply{Text: "deleted " + r.Payload}, nil
		},
	}})

	updates <- transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{
		ID: "cb1", Chat: transport.ChatTarget{ChatID: "c1"}, FromID: "u1", Data: "delrem:abc-123",
	}}
	assert.Equal(t, "deleted abc-123", ad.wait(t).text)

	require.Eventually(t, func() bool {
		ad.mu.Lock()
		defer ad.mu.Unlock()
		return len(ad.answered) == 1 && ad.answered[0] == "cb1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMenuCommands(t *testing.T) {
	r := NewRouter(newRecordingAdapter(), logx.Nop())
	h := &Handlers{}
	r.SetRegistry(h.Commands(), h.Callbacks())

	var names []string
	for _, c := range r.MenuCommands() {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"add_reminder", "delete_reminder", "list_reminders", "ping", "status", "help"}, names)
}
