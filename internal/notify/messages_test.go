package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duebot/internal/store"
	"duebot/internal/threshold"
)

func TestAssignmentReminder(t *testing.T) {
	t.Parallel()

	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	p := 25.0
	a := store.Assignment{
		ID:              1,
		Name:            "Lab 3",
		Deadline:        now.Add(30 * time.Minute),
		PointsPossible:  &p,
		SubmissionTypes: []string{"online_upload", "online_url"},
		Link:            "https://canvas/1",
	}
	b := threshold.Classify(30 * time.Minute)
	m := AssignmentReminder(a, b, now, time.UTC)

	assert.Equal(t, KindAssignmentReminder, m.Kind)
	assert.Equal(t, "Reminder: Lab 3", m.Title)
	assert.Equal(t, threshold.ColorRed, m.Color)
	assert.True(t, m.Mention)
	require.Len(t, m.Fields, 5)
	assert.Equal(t, "Tuesday, January 1, 2030 12:30 PM UTC", m.Fields[0].Value)
	assert.Equal(t, "30 minutes from now", m.Fields[1].Value)
	assert.Equal(t, "25", m.Fields[2].Value)
	assert.Equal(t, "online_upload, online_url", m.Fields[3].Value)
	assert.Equal(t, "https://canvas/1", m.Fields[4].URL)
}

func TestAssignmentReminderMissingValues(t *testing.T) {
	t.Parallel()

	now := time.Now()
	m := AssignmentReminder(store.Assignment{Name: "x", Deadline: now.Add(time.Hour)}, threshold.Classify(time.Hour), now, nil)
	assert.Equal(t, "N/A", m.Fields[2].Value)
	assert.Equal(t, "N/A", m.Fields[3].Value)
	assert.Equal(t, "N/A", m.Fields[4].Value)
}

func TestCustomReminderTerminal(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := store.Reminder{Title: "Call mom", Date: now}
	m := CustomReminder(r, threshold.ClassifyCustom(0), now, time.UTC)
	assert.Equal(t, `"Call mom" is due now`, m.Content)
	assert.Equal(t, store.DefaultDescription, m.Fields[2].Value)
}

func TestNewAndUpdatedAssignment(t *testing.T) {
	t.Parallel()

	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	a := store.Assignment{ID: 42, Name: "Essay", Deadline: now.Add(5 * 24 * time.Hour)}

	n := NewAssignment(a, "", now, time.UTC)
	assert.Equal(t, threshold.ColorBlue, n.Color)
	assert.Equal(t, "No description available.", n.Description)
	assert.False(t, n.Mention)

	u := UpdatedAssignment(a, now.Add(24*time.Hour), now, time.UTC)
	assert.Equal(t, threshold.ColorOrange, u.Color)
	assert.Equal(t, "Wednesday, January 2, 2030 12:00 AM UTC ==> Sunday, January 6, 2030 12:00 AM UTC", u.Description)
}
