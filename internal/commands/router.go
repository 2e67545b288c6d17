package commands

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"duebot/internal/transport"
	logx "duebot/pkg/logx"
)

const (
	defaultTimeout = 15 * time.Second
	internalErrMsg = "Something went wrong. Please try again later."
)

type Router struct {
	adapter transport.Adapter
	log     logx.Logger

	mu        sync.RWMutex
	cmds      []Command
	byName    map[string]*Command
	callbacks map[string]CallbackRoute

	jobs chan func()
	seq  atomic.Uint64
}

func NewRouter(adapter transport.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		adapter:   adapter,
		log:       log.With(logx.String("comp", "commands")),
		byName:    map[string]*Command{},
		callbacks: map[string]CallbackRoute{},
		jobs:      make(chan func(), 256),
	}
}

// SetRegistry replaces the command set. A help command is always added.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "show available commands",
		Usage:       "/help",
		Handle: func(context.Context, *Request) (Reply, error) {
			return Reply{Text: r.helpText(), Ephemeral: true}, nil
		},
	})

	byName := map[string]*Command{}
	kept := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.TrimSpace(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		kept = append(kept, c)
	}
	for i := range kept {
		c := &kept[i]
		byName[c.Name] = c
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := byName[a]; !exists {
				byName[a] = c
			}
		}
	}

	cb := map[string]CallbackRoute{}
	for _, route := range cbs {
		p := strings.TrimSpace(route.Prefix)
		if p == "" || route.Handle == nil {
			continue
		}
		cb[p] = route
	}

	r.mu.Lock()
	r.cmds = kept
	r.byName = byName
	r.callbacks = cb
	r.mu.Unlock()
}

// MenuCommands lists registered commands for platform command menus.
func (r *Router) MenuCommands() []transport.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

func (r *Router) helpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lines := []string{"Commands:"}
	for _, c := range r.cmds {
		line := "/" + c.Name
		if c.Description != "" {
			line += " - " + c.Description
		}
		lines = append(lines, line)
		if c.Usage != "" && c.Usage != "/"+c.Name {
			lines = append(lines, "    "+c.Usage)
		}
	}
	return strings.Join(lines, "\n")
}

// DispatchLoop consumes updates until ctx is cancelled or updates closes.
// Handlers run on a bounded worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := max(2, runtime.NumCPU())
	r.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	wctx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-wctx.Done():
					return
				case job := <-r.jobs:
					if job != nil {
						job()
					}
				}
			}
		}()
	}
	defer func() {
		stop()
		wg.Wait()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateCommand:
		if up.Message != nil {
			r.routeMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			r.routeCallback(ctx, up.Callback)
		}
	}
}

func (r *Router) routeMessage(ctx context.Context, msg *transport.Message) {
	name, rest, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	r.mu.RLock()
	cmd, found := r.byName[name]
	r.mu.RUnlock()

	req := &Request{
		Chat:     msg.Chat,
		FromID:   msg.FromID,
		FromName: msg.FromName,
		Command:  name,
		Args:     rest,
		Tokens:   tokenize(rest),
		Log:      r.reqLog(msg.Chat, msg.FromID, name),
	}
	if !found {
		r.reply(ctx, req, Reply{Text: "Unknown command. Try /help", Ephemeral: true})
		return
	}

	h := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(timeoutOr(cmd.Timeout)))
	r.enqueue(ctx, req, func() {
		rep, err := h(ctx, req)
		r.finish(ctx, req, rep, err)
	})
}

func (r *Router) routeCallback(ctx context.Context, cb *transport.Callback) {
	prefix, payload, ok := strings.Cut(strings.TrimSpace(cb.Data), ":")
	if !ok {
		return
	}
	r.mu.RLock()
	route, found := r.callbacks[prefix]
	r.mu.RUnlock()
	if !found {
		return
	}

	req := &Request{
		Chat:    cb.Chat,
		FromID:  cb.FromID,
		Command: "cb:" + prefix,
		Payload: payload,
		Log:     r.reqLog(cb.Chat, cb.FromID, "cb:"+prefix),
	}
	h := Chain(route.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(timeoutOr(route.Timeout)))
	r.enqueue(ctx, req, func() {
		rep, err := h(ctx, req)
		r.finish(ctx, req, rep, err)
		// Stops the client's loading indicator.
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	})
}

func (r *Router) enqueue(ctx context.Context, req *Request, job func()) {
	select {
	case r.jobs <- job:
	default:
		r.reply(ctx, req, Reply{Text: "Busy, try again.", Ephemeral: true})
	}
}

func (r *Router) finish(ctx context.Context, req *Request, rep Reply, err error) {
	var ue *UserError
	switch {
	case errors.As(err, &ue):
		rep = Reply{Text: ue.Msg, Ephemeral: true}
	case err != nil:
		rep = Reply{Text: internalErrMsg, Ephemeral: true}
	}
	if rep.Text == "" {
		return
	}
	r.reply(ctx, req, rep)
}

func (r *Router) reply(ctx context.Context, req *Request, rep Reply) {
	opt := &transport.SendOptions{
		DisablePreview: true,
		Ephemeral:      rep.Ephemeral,
		UserID:         req.FromID,
		Buttons:        rep.Buttons,
	}
	if _, err := r.adapter.SendText(ctx, req.Chat, rep.Text, opt); err != nil {
		req.Log.Warn("reply failed", logx.Err(err))
	}
}

func (r *Router) reqLog(chat transport.ChatTarget, from, cmd string) logx.Logger {
	return r.log.With(
		logx.Int64("rid", int64(r.seq.Add(1))),
		logx.String("chat_id", chat.ChatID),
		logx.String("from_id", from),
		logx.String("cmd", cmd),
	)
}

func timeoutOr(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultTimeout
}
