package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"duebot/internal/threshold"
)

// DefaultDescription is stored for reminders created without a description.
const DefaultDescription = "No description provided."

var ErrIndexOutOfRange = errors.New("store: reminder index out of range")

type Document struct {
	Assignments []Assignment `json:"assignments"`
	Reminders   []Reminder   `json:"reminders"`
	Users       []string     `json:"users"`
}

type Assignment struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Deadline        time.Time `json:"deadline"`
	PointsPossible  *float64  `json:"points_possible"`
	SubmissionTypes []string  `json:"submission_types"`
	Link            string    `json:"link"`
	RemindersSent   KeySet    `json:"remindersSent"`
}

type Reminder struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Date          time.Time `json:"date"`
	OwnerUserID   string    `json:"userId"`
	RemindersSent KeySet    `json:"remindersSent"`
}

// NewID returns a fresh reminder id.
var NewID = uuid.NewString

func NewDocument() *Document {
	return &Document{
		Assignments: []Assignment{},
		Reminders:   []Reminder{},
		Users:       []string{},
	}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := &Document{
		Assignments: make([]Assignment, len(d.Assignments)),
		Reminders:   make([]Reminder, len(d.Reminders)),
		Users:       slices.Clone(d.Users),
	}
	if out.Users == nil {
		out.Users = []string{}
	}
	for i, a := range d.Assignments {
		a.SubmissionTypes = slices.Clone(a.SubmissionTypes)
		a.RemindersSent = slices.Clone(a.RemindersSent)
		if a.PointsPossible != nil {
			p := *a.PointsPossible
			a.PointsPossible = &p
		}
		out.Assignments[i] = a
	}
	for i, r := range d.Reminders {
		r.RemindersSent = slices.Clone(r.RemindersSent)
		out.Reminders[i] = r
	}
	return out
}

func (d *Document) AssignmentIndex(id int64) int {
	for i := range d.Assignments {
		if d.Assignments[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) ReminderIndex(id string) int {
	for i := range d.Reminders {
		if d.Reminders[i].ID == id {
			return i
		}
	}
	return -1
}

// UpsertAssignment replaces the assignment with the same id or appends it.
// It reports whether the assignment was new.
func (d *Document) UpsertAssignment(a Assignment) bool {
	if a.RemindersSent == nil {
		a.RemindersSent = KeySet{}
	}
	if a.SubmissionTypes == nil {
		a.SubmissionTypes = []string{}
	}
	if i := d.AssignmentIndex(a.ID); i >= 0 {
		d.Assignments[i] = a
		return false
	}
	d.Assignments = append(d.Assignments, a)
	return true
}

// AppendReminder stores r, filling in an id and default description.
func (d *Document) AppendReminder(r Reminder) Reminder {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = NewID()
	}
	if strings.TrimSpace(r.Description) == "" {
		r.Description = DefaultDescription
	}
	if r.RemindersSent == nil {
		r.RemindersSent = KeySet{}
	}
	d.Reminders = append(d.Reminders, r)
	return r
}

func (d *Document) RemoveReminder(id string) (Reminder, bool) {
	i := d.ReminderIndex(id)
	if i < 0 {
		return Reminder{}, false
	}
	r := d.Reminders[i]
	d.Reminders = slices.Delete(d.Reminders, i, i+1)
	return r, true
}

func (d *Document) RemoveReminderAt(i int) (Reminder, error) {
	if i < 0 || i >= len(d.Reminders) {
		return Reminder{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	r := d.Reminders[i]
	d.Reminders = slices.Delete(d.Reminders, i, i+1)
	return r, nil
}

// MarkAssignmentFired records key for the assignment. Missing ids are ignored.
func (d *Document) MarkAssignmentFired(id int64, key threshold.Key) bool {
	i := d.AssignmentIndex(id)
	if i < 0 {
		return false
	}
	return d.Assignments[i].RemindersSent.Add(key)
}

func (d *Document) MarkReminderFired(id string, key threshold.Key) bool {
	i := d.ReminderIndex(id)
	if i < 0 {
		return false
	}
	return d.Reminders[i].RemindersSent.Add(key)
}

// SetPing adds or removes userID from the opt-in list and reports whether
// the list changed.
func (d *Document) SetPing(userID string, on bool) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	i := slices.Index(d.Users, userID)
	switch {
	case on && i < 0:
		d.Users = append(d.Users, userID)
		return true
	case !on && i >= 0:
		d.Users = slices.Delete(d.Users, i, i+1)
		return true
	}
	return false
}

func (d *Document) PingEnabled(userID string) bool {
	return slices.Contains(d.Users, userID)
}
