// Package reminder evaluates tracked items against the threshold ladder and
// fires each threshold at most once per item.
package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/jmhodges/clock"

	"duebot/internal/notify"
	"duebot/internal/store"
	"duebot/internal/threshold"
	logx "duebot/pkg/logx"
)

// Report summarizes one tick.
type Report struct {
	Evaluated int
	Fired     int
	Failed    int
	// Skipped counts due items left for later because notifications are off.
	Skipped int
	Removed int
	SaveErr error
}

type itemKind int

const (
	kindAssignment itemKind = iota
	kindCustom
)

type decision struct {
	kind         itemKind
	assignmentID int64
	reminderID   string
	name         string
	bucket       threshold.Bucket
	msg          notify.Message
}

type Engine struct {
	store    *store.Store
	notifier notify.Notifier
	clk      clock.Clock
	loc      *time.Location
	log      logx.Logger
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option          { return func(e *Engine) { e.clk = c } }
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }
func WithLogger(l logx.Logger) Option        { return func(e *Engine) { e.log = l } }

func New(st *store.Store, n notify.Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		notifier: n,
		clk:      clock.New(),
		loc:      time.UTC,
		log:      logx.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	e.log = e.log.With(logx.String("comp", "reminder"))
	return e
}

// Tick runs one evaluation pass. Decisions are taken under the store lock,
// notifications are sent without it, and successful sends are recorded in a
// single update afterwards.
func (e *Engine) Tick(ctx context.Context) Report {
	now := e.clk.Now()

	var (
		rep       Report
		decisions []decision
	)
	e.store.Reload(ctx)
	e.store.View(func(d *store.Document) {
		rep.Evaluated = len(d.Assignments) + len(d.Reminders)
		decisions = e.decide(d, now)
	})
	if len(decisions) == 0 {
		return rep
	}

	sent := make([]decision, 0, len(decisions))
	for i, dc := range decisions {
		if ctx.Err() != nil {
			break
		}
		err := e.notifier.Notify(ctx, dc.msg)
		if errors.Is(err, notify.ErrDisabled) {
			rep.Skipped = len(decisions) - i
			e.log.Debug("notifications disabled; due reminders held", logx.Int("due", rep.Skipped))
			break
		}
		if err != nil {
			rep.Failed++
			e.log.Warn("reminder not sent; will retry",
				logx.String("item", dc.name),
				logx.String("threshold", string(dc.bucket.Key)),
				logx.Err(err),
			)
			continue
		}
		sent = append(sent, dc)
	}
	if len(sent) == 0 {
		return rep
	}

	err := e.store.Update(ctx, func(d *store.Document) error {
		changed := false
		for _, dc := range sent {
			switch {
			case dc.kind == kindAssignment:
				if d.MarkAssignmentFired(dc.assignmentID, dc.bucket.Key) {
					rep.Fired++
					changed = true
				}
			case dc.bucket.Terminal():
				if _, ok := d.RemoveReminder(dc.reminderID); ok {
					rep.Fired++
					rep.Removed++
					changed = true
				}
			default:
				if d.MarkReminderFired(dc.reminderID, dc.bucket.Key) {
					rep.Fired++
					changed = true
				}
			}
		}
		if !changed {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		rep.SaveErr = err
	}
	for _, dc := range sent {
		e.log.Info("reminder sent",
			logx.String("item", dc.name),
			logx.String("threshold", string(dc.bucket.Key)),
		)
	}
	return rep
}

// Run is Tick for the scheduler: it logs a summary and returns only a save
// failure.
func (e *Engine) Run(ctx context.Context) error {
	rep := e.Tick(ctx)
	if rep.Fired > 0 || rep.Failed > 0 {
		e.log.Debug("reminder tick",
			logx.Int("evaluated", rep.Evaluated),
			logx.Int("fired", rep.Fired),
			logx.Int("failed", rep.Failed),
			logx.Int("removed", rep.Removed),
		)
	}
	if rep.SaveErr != nil {
		return errors.Join(errors.New("reminder: save fired state"), rep.SaveErr)
	}
	return nil
}

func (e *Engine) decide(d *store.Document, now time.Time) []decision {
	var out []decision
	for _, a := range d.Assignments {
		if a.Deadline.IsZero() {
			continue
		}
		remaining := a.Deadline.Sub(now)
		// Overdue assignments are left alone.
		if remaining < 0 {
			continue
		}
		b := threshold.Classify(remaining)
		if !b.Due() || a.RemindersSent.Has(b.Key) {
			continue
		}
		out = append(out, decision{
			kind:         kindAssignment,
			assignmentID: a.ID,
			name:         a.Name,
			bucket:       b,
			msg:          notify.AssignmentReminder(a, b, now, e.loc),
		})
	}
	for _, r := range d.Reminders {
		b := threshold.ClassifyCustom(r.Date.Sub(now))
		if !b.Due() || r.RemindersSent.Has(b.Key) {
			continue
		}
		out = append(out, decision{
			kind:       kindCustom,
			reminderID: r.ID,
			name:       r.Title,
			bucket:     b,
			msg:        notify.CustomReminder(r, b, now, e.loc),
		})
	}
	return out
}
