package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "duebot/pkg/logx"
)

var ErrDuplicate = errors.New("scheduler: duplicate schedule name")

type JobFunc func(ctx context.Context) error

// Info is a point-in-time view of one schedule.
type Info struct {
	Name     string
	Spec     string
	Next     time.Time
	Prev     time.Time
	Runs     int
	Failures int
	LastErr  string
	LastDur  time.Duration
}

type entry struct {
	name    string
	spec    ParsedSpec
	raw     string
	timeout time.Duration
	job     JobFunc
	id      cron.EntryID

	runs     int
	failures int
	lastErr  string
	lastDur  time.Duration
}

type Scheduler struct {
	mu sync.Mutex

	log    logx.Logger
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron

	entries map[string]*entry
	order   []string

	ctx    context.Context
	cancel context.CancelFunc
}

func New(loc *time.Location, log logx.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		log:     log.With(logx.String("comp", "scheduler")),
		loc:     loc,
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]*entry{},
	}
}

// AddSchedule registers job under name. It may be called before or after
// Start.
func (s *Scheduler) AddSchedule(name, spec string, timeout time.Duration, job JobFunc) error {
	name = strings.TrimSpace(name)
	if name == "" || job == nil {
		return errors.New("scheduler: name and job are required")
	}
	ps, err := ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}
	if ps.Kind == SpecCron {
		if _, err := s.parser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("scheduler: %s: %w", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	e := &entry{name: name, spec: ps, raw: spec, timeout: timeout, job: job}
	s.entries[name] = e
	s.order = append(s.order, name)
	if s.c != nil {
		return s.addCronLocked(e)
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, name := range s.order {
		if err := s.addCronLocked(s.entries[name]); err != nil {
			s.log.Error("schedule rejected", logx.String("name", name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("schedules", len(s.entries)), logx.String("tz", s.loc.String()))
}

// Stop halts scheduling, cancels running jobs and waits for them up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	done := c.Stop().Done()
	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) addCronLocked(e *entry) error {
	ctx, name := s.ctx, e.name
	job := cron.FuncJob(func() { _ = s.exec(ctx, name) })
	if e.spec.Kind == SpecInterval {
		e.id = s.c.Schedule(cron.Every(e.spec.Every), job)
		return nil
	}
	id, err := s.c.AddJob(e.spec.Cron, job)
	if err != nil {
		return err
	}
	e.id = id
	return nil
}

// RunNow runs the named job once on the calling goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	_, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown schedule %q", name)
	}
	return s.exec(ctx, name)
}

func (s *Scheduler) exec(ctx context.Context, name string) (err error) {
	s.mu.Lock()
	e := s.entries[name]
	s.mu.Unlock()
	if e == nil || ctx == nil {
		return nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in job", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		dur := time.Since(start)

		s.mu.Lock()
		e.runs++
		e.lastDur = dur
		e.lastErr = ""
		if err != nil {
			e.failures++
			e.lastErr = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			s.log.Warn("job failed", logx.String("name", name), logx.Duration("dur", dur), logx.Err(err))
		}
	}()
	return e.job(ctx)
}

// Snapshot lists schedules sorted by name.
func (s *Scheduler) Snapshot() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.entries))
	for _, e := range s.entries {
		info := Info{
			Name:     e.name,
			Spec:     e.raw,
			Runs:     e.runs,
			Failures: e.failures,
			LastErr:  e.lastErr,
			LastDur:  e.lastDur,
		}
		if s.c != nil && e.id != 0 {
			ce := s.c.Entry(e.id)
			info.Next, info.Prev = ce.Next, ce.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
