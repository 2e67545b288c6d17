package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"duebot/internal/store"
	"duebot/internal/threshold"
)

// DateLayout is how deadlines appear in alerts.
const DateLayout = "Monday, January 2, 2006 3:04 PM MST"

const notAvailable = "N/A"

// TimeLeft renders due relative to now, e.g. "3 hours from now".
func TimeLeft(due, now time.Time) string {
	return humanize.RelTime(due, now, "ago", "from now")
}

func formatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

func points(p *float64) string {
	if p == nil || *p == 0 {
		return notAvailable
	}
	return humanize.Ftoa(*p)
}

func submissionTypes(types []string) string {
	if len(types) == 0 {
		return notAvailable
	}
	return strings.Join(types, ", ")
}

func linkField(url string) Field {
	if strings.TrimSpace(url) == "" {
		return Field{Name: "Link", Value: notAvailable}
	}
	return Field{Name: "Link", Value: "View Assignment", URL: url}
}

// AssignmentReminder is the alert for an assignment crossing bucket b.
func AssignmentReminder(a store.Assignment, b threshold.Bucket, now time.Time, loc *time.Location) Message {
	return Message{
		Kind:    KindAssignmentReminder,
		Content: fmt.Sprintf("%s for %q", b.Label, a.Name),
		Title:   "Reminder: " + a.Name,
		Fields: []Field{
			{Name: "Deadline", Value: formatDate(a.Deadline, loc), Inline: true},
			{Name: "Time Left", Value: TimeLeft(a.Deadline, now), Inline: true},
			{Name: "Points Worth", Value: points(a.PointsPossible), Inline: true},
			{Name: "Submission Type", Value: submissionTypes(a.SubmissionTypes), Inline: true},
			linkField(a.Link),
		},
		Color:     b.Color,
		Mention:   true,
		Timestamp: now,
	}
}

// CustomReminder is the alert for a user-created reminder crossing bucket b.
func CustomReminder(r store.Reminder, b threshold.Bucket, now time.Time, loc *time.Location) Message {
	desc := r.Description
	if strings.TrimSpace(desc) == "" {
		desc = store.DefaultDescription
	}
	content := fmt.Sprintf("%s for %q", b.Label, r.Title)
	if b.Terminal() {
		content = fmt.Sprintf("%q is due now", r.Title)
	}
	return Message{
		Kind:    KindCustomReminder,
		Content: content,
		Title:   "Reminder: " + r.Title,
		Fields: []Field{
			{Name: "Reminder Date", Value: formatDate(r.Date, loc), Inline: true},
			{Name: "Time Left", Value: TimeLeft(r.Date, now), Inline: true},
			{Name: "Description", Value: desc, Inline: true},
		},
		Color:     b.Color,
		Mention:   true,
		Timestamp: now,
	}
}

// NewAssignment announces an assignment seen for the first time. description
// is plain text.
func NewAssignment(a store.Assignment, description string, now time.Time, loc *time.Location) Message {
	description = strings.TrimSpace(description)
	if description == "" {
		description = "No description available."
	}
	return Message{
		Kind:        KindAssignmentNew,
		Content:     "A new assignment has been posted!",
		Title:       a.Name,
		Description: truncate(description, 4000),
		Fields: []Field{
			{Name: "Deadline", Value: formatDate(a.Deadline, loc), Inline: true},
			{Name: "Points Worth", Value: points(a.PointsPossible), Inline: true},
			{Name: "Submission Type", Value: submissionTypes(a.SubmissionTypes), Inline: true},
			linkField(a.Link),
		},
		Color:     threshold.ColorBlue,
		Timestamp: now,
	}
}

// UpdatedAssignment announces a deadline change from previous to a.Deadline.
func UpdatedAssignment(a store.Assignment, previous time.Time, now time.Time, loc *time.Location) Message {
	return Message{
		Kind:        KindAssignmentUpdated,
		Content:     fmt.Sprintf("The assignment %q has been updated!", a.Name),
		Title:       "Updated Assignment: " + a.Name,
		Description: formatDate(previous, loc) + " ==> " + formatDate(a.Deadline, loc),
		Fields: []Field{
			{Name: "New Deadline", Value: formatDate(a.Deadline, loc), Inline: true},
			linkField(a.Link),
		},
		Color:     threshold.ColorOrange,
		Timestamp: now,
	}
}

func truncate(s string, maxN int) string {
	r := []rune(s)
	if len(r) <= maxN {
		return s
	}
	return string(r[:maxN-1]) + "…"
}
