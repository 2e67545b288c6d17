package coursesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"duebot/internal/canvas"
	"duebot/internal/mocks"
	"duebot/internal/notify"
	"duebot/internal/storage"
	"duebot/internal/store"
	"duebot/internal/threshold"
	logx "duebot/pkg/logx"
)

var now = time.Date(2030, 2, 1, 8, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	pts := 10.0
	doc := store.NewDocument()
	doc.UpsertAssignment(store.Assignment{
		ID: 1, Name: "Old", Deadline: now.Add(time.Hour),
		RemindersSent: store.KeySet{threshold.Key24h, threshold.Key6h},
	})
	doc.UpsertAssignment(store.Assignment{ID: 2, Name: "Same", Deadline: now.Add(2 * time.Hour)})

	remote := []canvas.Assignment{
		{ID: 1, Name: "Old (extended)", DueAt: at(48 * time.Hour), PointsPossible: &pts, HTMLURL: "https://x/1"},
		{ID: 2, Name: "Same", DueAt: at(2 * time.Hour)},
		{ID: 3, Name: "No due date"},
		{ID: 4, Name: "Past", DueAt: at(-time.Minute)},
		{ID: 5, Name: "New", DueAt: at(120 * time.Hour), Description: "<p>Read <b>ch. 4</b></p>", SubmissionTypes: []string{"online_upload"}},
	}

	changes := Reconcile(doc, remote, now)
	require.Len(t, changes, 2)

	assert.Equal(t, Updated, changes[0].Kind)
	assert.Equal(t, int64(1), changes[0].Assignment.ID)
	assert.True(t, changes[0].Previous.Equal(now.Add(time.Hour)))

	assert.Equal(t, Added, changes[1].Kind)
	assert.Equal(t, "Read ch. 4", changes[1].Description)

	require.Len(t, doc.Assignments, 3)
	a1 := doc.Assignments[0]
	assert.Equal(t, "Old (extended)", a1.Name)
	assert.True(t, a1.Deadline.Equal(now.Add(48*time.Hour)))
	assert.Equal(t, store.KeySet{threshold.Key24h, threshold.Key6h}, a1.RemindersSent)
	assert.Equal(t, "https://x/1", a1.Link)

	a5 := doc.Assignments[2]
	assert.Equal(t, int64(5), a5.ID)
	assert.Empty(t, a5.RemindersSent)
	assert.Equal(t, []string{"online_upload"}, a5.SubmissionTypes)
}

func TestReconcileUnchangedIsNoop(t *testing.T) {
	t.Parallel()

	doc := store.NewDocument()
	doc.UpsertAssignment(store.Assignment{ID: 9, Name: "A", Deadline: now.Add(time.Hour)})
	before := doc.Clone()

	// Same instant, different zone.
	due := now.Add(time.Hour).In(time.FixedZone("X", 3600))
	changes := Reconcile(doc, []canvas.Assignment{{ID: 9, Name: "A", DueAt: &due}}, now)
	assert.Empty(t, changes)
	assert.Equal(t, before, doc)
}

type harness struct {
	fetcher  *mocks.MockFetcher
	notifier *mocks.MockNotifier
	store    *store.Store
	syncer   *Syncer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	p, err := storage.Open(storage.Config{Dir: t.TempDir(), CourseID: "c"}, logx.Nop())
	require.NoError(t, err)
	st := store.New(p, logx.Nop())
	require.NoError(t, st.Load(context.Background()))

	clk := clock.NewFake()
	clk.Set(now)
	f := mocks.NewMockFetcher(ctrl)
	n := mocks.NewMockNotifier(ctrl)
	return &harness{
		fetcher:  f,
		notifier: n,
		store:    st,
		syncer:   New(f, st, n, "c", WithClock(clk)),
	}
}

func TestRunAddsThenUpdates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.fetcher.EXPECT().ListAssignments(gomock.Any(), "c").
		Return([]canvas.Assignment{{ID: 42, Name: "Essay", DueAt: at(5 * 24 * time.Hour)}}, nil)
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m notify.Message) error {
		assert.Equal(t, notify.KindAssignmentNew, m.Kind)
		return nil
	}).Times(1)

	require.NoError(t, h.syncer.Run(ctx))
	d := h.store.Snapshot()
	require.Len(t, d.Assignments, 1)
	assert.Equal(t, int64(42), d.Assignments[0].ID)
	assert.Empty(t, d.Assignments[0].RemindersSent)

	// Second fetch moves the deadline.
	h.fetcher.EXPECT().ListAssignments(gomock.Any(), "c").
		Return([]canvas.Assignment{{ID: 42, Name: "Essay", DueAt: at(6 * 24 * time.Hour)}}, nil)
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m notify.Message) error {
		assert.Equal(t, notify.KindAssignmentUpdated, m.Kind)
		return nil
	}).Times(1)

	require.NoError(t, h.syncer.Run(ctx))
	d = h.store.Snapshot()
	require.Len(t, d.Assignments, 1)
	assert.Equal(t, int64(42), d.Assignments[0].ID)
	assert.True(t, d.Assignments[0].Deadline.Equal(now.Add(6*24*time.Hour)))

	last := h.syncer.Last()
	assert.Equal(t, 1, last.Updated)
	assert.NoError(t, last.Err)
}

func TestRunUnchangedSendsNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	list := []canvas.Assignment{{ID: 1, Name: "A", DueAt: at(time.Hour)}}
	h.fetcher.EXPECT().ListAssignments(gomock.Any(), "c").Return(list, nil).Times(2)
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, h.syncer.Run(ctx))
	before := h.store.Snapshot()
	require.NoError(t, h.syncer.Run(ctx))
	assert.Equal(t, before, h.store.Snapshot())
}

func TestRunFetchErrorLeavesStore(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	require.NoError(t, h.store.Update(context.Background(), func(d *store.Document) error {
		d.UpsertAssignment(store.Assignment{ID: 1, Deadline: now.Add(time.Hour)})
		return nil
	}))
	before := h.store.Snapshot()

	se := &canvas.StatusError{StatusCode: 500, Status: "500 Internal Server Error"}
	h.fetcher.EXPECT().ListAssignments(gomock.Any(), "c").Return(nil, se)

	err := h.syncer.Run(context.Background())
	var got *canvas.StatusError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, before, h.store.Snapshot())
	assert.Error(t, h.syncer.Last().Err)
}

func TestRunAnnouncementFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.fetcher.EXPECT().ListAssignments(gomock.Any(), "c").
		Return([]canvas.Assignment{{ID: 1, Name: "A", DueAt: at(time.Hour)}}, nil)
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("chat down"))

	require.NoError(t, h.syncer.Run(context.Background()))
	assert.Len(t, h.store.Snapshot().Assignments, 1)
}
