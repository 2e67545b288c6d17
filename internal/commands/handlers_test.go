package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duebot/internal/coursesync"
	"duebot/internal/notify"
	"duebot/internal/storage"
	"duebot/internal/store"
	logx "duebot/pkg/logx"
)

var epoch = time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

func newHandlers(t *testing.T) *Handlers {
	t.Helper()
	p, err := storage.Open(storage.Config{Dir: t.TempDir(), CourseID: "42"}, logx.Nop())
	require.NoError(t, err)
	st := store.New(p, logx.Nop())
	require.NoError(t, st.Load(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	clk := clock.NewFake()
	clk.Set(epoch)
	return &Handlers{Store: st, Clock: clk, Location: time.UTC}
}

func req(from, args string) *Request {
	return &Request{FromID: from, Args: args, Log: logx.Nop()}
}

func userMsg(t *testing.T, err error) string {
	t.Helper()
	var ue *UserError
	require.True(t, errors.As(err, &ue), "want *UserError, got %v", err)
	return ue.Msg
}

func TestAddReminder(t *testing.T) {
	t.Parallel()
	h := newHandlers(t)
	ctx := context.Background()

	rep, err := h.AddReminder(ctx, req("u1", "Project | 01-03-2030 | 5:00 PM | bring slides"))
	require.NoError(t, err)
	assert.Equal(t, `Reminder "Project" set for Thursday, January 3, 2030 5:00 PM UTC.`, rep.Text)
	assert.False(t, rep.Ephemeral)

	doc := h.Store.Snapshot()
	require.Len(t, doc.Reminders, 1)
	r := doc.Reminders[0]
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "bring slides", r.Description)
	assert.Equal(t, "u1", r.OwnerUserID)
	assert.True(t, r.Date.Equal(time.Date(2030, 1, 3, 17, 0, 0, 0, time.UTC)))
	assert.Empty(t, r.RemindersSent)
}

func TestAddReminderDefaultsDescription(t *testing.T) {
	t.Parallel()
	h := newHandlers(t)

	_, err := h.AddReminder(context.Background(), req("u1", "Quiz | 01-02-2030 | 09:00"))
	require.NoError(t, err)
	assert.Equal(t, store.DefaultDescription, h.Store.Snapshot().Reminders[0].Description)
}

func TestAddReminderRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	h := newHandlers(t)
	ctx := context.Background()

	cases := map[string]string{
		"Quiz":                      msgAddUsage,
		" | 01-02-2030 | 09:00":     msgAddUsage,
		"Quiz | 2030-01-02 | 09:00": msgBadDate,
		"Quiz | 01-02-2030 | 9am":   msgBadTime,
		"Quiz | 12-31-2029 | 09:00": msgBadDateTime,
		"Quiz | 01-01-2030 | 10:00": msgBadDateTime,
	}
	for args, want := range cases {
		_, err := h.AddReminder(ctx, req("u1", args))
		assert.Equal(t, want, userMsg(t, err), args)
	}
	assert.Empty(t, h.Store.Snapshot().Reminders)
}

func TestDeleteReminderByID(t *testing.T) {
	t.Parallel()
	h := newHandlers(t)
	ctx := context.Background()

	_, err := h.AddReminder(ctx, req("u1", "A | 01-02-2030 | 09:00"))
	require.NoError(t, err)
	_, err = h.AddReminder(ctx, req("u1", "B | 01-03-2030 | 09:00"))
	require.NoError(t, err)
	doc := h.Store.Snapshot()
	idB := doc.Reminders[1].ID

	rep, err := h.DeleteReminder(ctx, req("u1", idB))
	require.NoError(t, err)
	assert.Equal(t, `Reminder "B" scheduled for Thursday, January 3, 2030 9:00 AM UTC has been deleted.`, rep.Text)

	left := h.Store.Snapshot().Reminders
	require.Len(t, left, 1)
	assert.Equal(t, "A", left[0].Title)

	_, err = h.DeleteReminder(ctx, req("u1", idB))
	assert.Equal(t, msgDeleteInvalid, userMsg(t, err))
}

func TestDeleteReminderRejectsIndex(t *testing.T) {
	t.Parallel()
	h := newHandlers(t)
	ctx := context.Background()

	_, err := h.AddReminder(ctx, req("u1", "A | 01-02-2030 | 09:00"))
	require.NoError(t, err)

	_, err = h.DeleteReminder(ctx, req("u1", "0"))
	assert.Equal(t, msgDeleteInvalid, userMsg(t, err))
	assert.Len(t, h.Store.Snapshot().Reminders, 1)
}

func TestDeleteReminderChoices(t *testing.T) {
	t.Parallel()
	h := newHandlers(t)
	ctx := context.Background()

	rep, err := h.DeleteReminder(ctx, req("u1", ""))
	require.NoError(t, err)
	assert.Equal(t, "There are no reminders to delete.", rep.Text)

	require.NoError(t, h.Store.Update(ctx, func(d *store.Document) error {
		for i := 0; i < 30; i++ {
			d.AppendReminder(store.Reminder{Title: "R", Date: epoch.Add(time.Duration(i+1) * time.Hour)})
		}
		return nil
	}))

	rep, err = h.DeleteReminder(ctx, req("u1", ""))
	require.NoError(t, err)
	require.Len(t, rep.Buttons, maxChoices)
	first := h.Store.Snapshot().Reminders[0]
	assert.Equal(t, DeletePrefix+":"+first.ID, rep.Buttons[0][0].Data)
	assert.Equal(t, "R - Tuesday, January 1, 2030 11:00 AM UTC", rep.Buttons[0][0].Text)

	// Pressing the button deletes by id.
	_, err = h.deleteByButton(ctx, &Request{Payload: first.ID, Log: logx.Nop()})
	require.NoError(t, err)
	assert.Len(t, h.Store.Snapshot().Reminders, 29)
}

func TestPing(t *testing.T) {
	t.Parallel()
	h := newHandlers(t)
	ctx := context.Background()

	steps := []struct{ args, want string }{
		{"on", msgPingEnabled},
		{"on", msgPingAlreadyOn},
		{"off", msgPingDisabled},
		{"off", msgPingAlreadyOff},
	}
	for _, s := range steps {
		rep, err := h.Ping(ctx, req("u9", s.args))
		require.NoError(t, err)
		assert.Equal(t, s.want, rep.Text)
		assert.True(t, rep.Ephemeral)
	}

	_, err := h.Ping(ctx, req("u9", "maybe"))
	assert.Equal(t, msgPingUsage, userMsg(t, err))
}

func TestListReminders(t *testing.T) {
	t.Parallel()
	h := newHandlers(t)
	ctx := context.Background()

	rep, err := h.ListReminders(ctx, req("u1", ""))
	require.NoError(t, err)
	assert.Equal(t, "No reminders set.", rep.Text)

	_, err = h.AddReminder(ctx, req("u1", "Essay | 01-02-2030 | 10:00"))
	require.NoError(t, err)
	id := h.Store.Snapshot().Reminders[0].ID

	rep, err = h.ListReminders(ctx, req("u1", ""))
	require.NoError(t, err)
	assert.Contains(t, rep.Text, "Essay - Wednesday, January 2, 2030 10:00 AM UTC (1 day from now)")
	assert.Contains(t, rep.Text, "id: "+id)
}

type stubSync struct{ res coursesync.Result }

func (s stubSync) Last() coursesync.Result { return s.res }

type stubDelivery struct{ st notify.Stats }

func (s stubDelivery) Stats() notify.Stats { return s.st }

func TestStatus(t *testing.T) {
	t.Parallel()
	h := newHandlers(t)

	rep, err := h.Status(context.Background(), req("u1", ""))
	require.NoError(t, err)
	assert.Contains(t, rep.Text, "Assignments tracked: 0")
	assert.NotContains(t, rep.Text, "Last sync")

	h.Sync = stubSync{coursesync.Result{At: epoch.Add(-5 * time.Minute), Fetched: 4, Added: 1}}
	h.Delivery = stubDelivery{notify.Stats{Sent: 3, Failed: 1}}
	rep, err = h.Status(context.Background(), req("u1", ""))
	require.NoError(t, err)
	assert.Contains(t, rep.Text, "Last sync: 5 minutes ago (4 fetched, 1 new, 0 updated)")
	assert.Contains(t, rep.Text, "Alerts sent: 3, failed: 1")

	h.Sync = stubSync{}
	rep, err = h.Status(context.Background(), req("u1", ""))
	require.NoError(t, err)
	assert.Contains(t, rep.Text, "Last sync: never")
}
