// Package coursesync reconciles the remote course assignment list into the
// store and announces new and rescheduled assignments.
package coursesync

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jmhodges/clock"

	"duebot/internal/canvas"
	"duebot/internal/notify"
	"duebot/internal/store"
	logx "duebot/pkg/logx"
)

//go:generate mockgen -source=coursesync.go -destination=../mocks/fetcher_mock.go -package=mocks

// Fetcher lists a course's assignments.
type Fetcher interface {
	ListAssignments(ctx context.Context, courseID string) ([]canvas.Assignment, error)
}

type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Updated
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

type Change struct {
	Kind        ChangeKind
	Assignment  store.Assignment
	Previous    time.Time // old deadline, Updated only
	Description string    // plain text, Added only
}

// Reconcile applies remote onto doc and returns what changed. Remote items
// without a due date or already past due are ignored. Known items keep their
// fired thresholds when the deadline moves.
func Reconcile(doc *store.Document, remote []canvas.Assignment, now time.Time) []Change {
	var changes []Change
	for _, ra := range remote {
		if ra.DueAt == nil || !ra.DueAt.After(now) {
			continue
		}
		due := ra.DueAt.UTC()

		i := doc.AssignmentIndex(ra.ID)
		if i < 0 {
			a := store.Assignment{
				ID:              ra.ID,
				Name:            ra.Name,
				Deadline:        due,
				PointsPossible:  ra.PointsPossible,
				SubmissionTypes: slices.Clone(ra.SubmissionTypes),
				Link:            ra.HTMLURL,
				RemindersSent:   store.KeySet{},
			}
			doc.UpsertAssignment(a)
			changes = append(changes, Change{
				Kind:        Added,
				Assignment:  a,
				Description: canvas.StripHTML(ra.Description),
			})
			continue
		}

		cur := &doc.Assignments[i]
		if cur.Deadline.Equal(due) {
			continue
		}
		prev := cur.Deadline
		cur.Deadline = due
		cur.Name = ra.Name
		cur.Link = ra.HTMLURL
		cur.PointsPossible = ra.PointsPossible
		if ra.SubmissionTypes != nil {
			cur.SubmissionTypes = slices.Clone(ra.SubmissionTypes)
		}
		changes = append(changes, Change{Kind: Updated, Assignment: *cur, Previous: prev})
	}
	return changes
}

// Result is the outcome of the last Run.
type Result struct {
	At      time.Time
	Fetched int
	Added   int
	Updated int
	Err     error
}

type Syncer struct {
	fetcher  Fetcher
	store    *store.Store
	notifier notify.Notifier
	courseID string
	clk      clock.Clock
	loc      *time.Location
	log      logx.Logger

	mu   sync.Mutex
	last Result
}

type Option func(*Syncer)

func WithClock(c clock.Clock) Option          { return func(s *Syncer) { s.clk = c } }
func WithLocation(loc *time.Location) Option { return func(s *Syncer) { s.loc = loc } }
func WithLogger(l logx.Logger) Option        { return func(s *Syncer) { s.log = l } }

func New(f Fetcher, st *store.Store, n notify.Notifier, courseID string, opts ...Option) *Syncer {
	s := &Syncer{
		fetcher:  f,
		store:    st,
		notifier: n,
		courseID: courseID,
		clk:      clock.New(),
		loc:      time.UTC,
		log:      logx.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	s.log = s.log.With(logx.String("comp", "coursesync"), logx.String("course", courseID))
	return s
}

// Run fetches, reconciles and saves, then announces each change. A fetch
// failure leaves the store untouched. Announcement failures are logged only.
func (s *Syncer) Run(ctx context.Context) error {
	res := Result{At: s.clk.Now()}
	defer func() {
		s.mu.Lock()
		s.last = res
		s.mu.Unlock()
	}()

	remote, err := s.fetcher.ListAssignments(ctx, s.courseID)
	if err != nil {
		res.Err = fmt.Errorf("coursesync: fetch: %w", err)
		s.log.Warn("assignment fetch failed; keeping stored state", logx.Err(err))
		return res.Err
	}
	res.Fetched = len(remote)

	var changes []Change
	err = s.store.Update(ctx, func(d *store.Document) error {
		changes = Reconcile(d, remote, res.At)
		if len(changes) == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		// A failed write still leaves the reconciled state in memory.
		res.Err = err
		s.log.Error("saving synced assignments failed", logx.Err(err))
	}

	now := s.clk.Now()
	for _, c := range changes {
		var msg notify.Message
		switch c.Kind {
		case Added:
			res.Added++
			msg = notify.NewAssignment(c.Assignment, c.Description, now, s.loc)
			s.log.Info("new assignment", logx.Int64("id", c.Assignment.ID), logx.String("name", c.Assignment.Name))
		case Updated:
			res.Updated++
			msg = notify.UpdatedAssignment(c.Assignment, c.Previous, now, s.loc)
			s.log.Info("assignment rescheduled",
				logx.Int64("id", c.Assignment.ID),
				logx.Time("from", c.Previous),
				logx.Time("to", c.Assignment.Deadline),
			)
		}
		if nerr := s.notifier.Notify(ctx, msg); nerr != nil {
			s.log.Warn("assignment announcement failed", logx.Int64("id", c.Assignment.ID), logx.Err(nerr))
		}
	}

	s.log.Debug("sync done", logx.Int("fetched", res.Fetched), logx.Int("added", res.Added), logx.Int("updated", res.Updated))
	return res.Err
}

// Last returns the result of the most recent Run.
func (s *Syncer) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
