// Package commands routes chat commands and button presses to handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"duebot/internal/transport"
	logx "duebot/pkg/logx"
)

// UserError carries a message meant for the person who ran the command.
// It never reaches the store.
type UserError struct {
	Msg string
}

func (e *UserError) Error() string { return e.Msg }

func userErr(msg string) error { return &UserError{Msg: msg} }

// Reply is what a handler wants sent back.
type Reply struct {
	Text      string
	Ephemeral bool
	Buttons   [][]transport.Button
}

type Request struct {
	Chat     transport.ChatTarget
	FromID   string
	FromName string
	Command  string
	// Args is the raw text after the command word.
	Args   string
	Tokens []string
	// Payload is set for button presses.
	Payload string
	Log     logx.Logger
}

type HandlerFunc func(ctx context.Context, req *Request) (Reply, error)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Timeout     time.Duration
	Handle      HandlerFunc
}

// CallbackRoute handles button presses whose data starts with Prefix + ":".
type CallbackRoute struct {
	Prefix  string
	Timeout time.Duration
	Handle  HandlerFunc
}

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (Reply, error) {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (rep Reply, err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (Reply, error) {
			start := time.Now()
			rep, err := next(ctx, req)
			// req.Log already carries chat, sender and command.
			fields := []logx.Field{logx.Duration("dur", time.Since(start))}
			var ue *UserError
			switch {
			case errors.As(err, &ue):
				req.Log.Info("request rejected", append(fields, logx.String("reason", ue.Msg))...)
			case err != nil:
				req.Log.Warn("request failed", append(fields, logx.Err(err))...)
			default:
				req.Log.Info("request ok", fields...)
			}
			return rep, err
		}
	}
}
