package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrCorrupt reports a document that is not a JSON object at all.
var ErrCorrupt = errors.New("store: document is not a JSON object")

// Encode serializes d as indented JSON.
func Encode(d *Document) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Decode parses a stored document and applies schema defaults. Sections that
// have the wrong shape are replaced with empty collections and reported in
// issues; only a non-object document is an error.
func Decode(b []byte) (doc *Document, issues []string, err error) {
	b = bytes.TrimSpace(b)
	doc = NewDocument()
	if len(b) == 0 {
		return doc, []string{"empty document"}, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(b, &top); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if top == nil {
		return doc, []string{"null document"}, nil
	}

	if raw, ok := top["assignments"]; ok {
		var list []wireAssignment
		if err := json.Unmarshal(raw, &list); err != nil {
			issues = append(issues, "assignments: "+err.Error())
		}
		for i, w := range list {
			a, err := w.assignment()
			if err != nil {
				issues = append(issues, fmt.Sprintf("assignments[%d]: %v", i, err))
				continue
			}
			doc.Assignments = append(doc.Assignments, a)
		}
	}

	if raw, ok := top["reminders"]; ok {
		var list []wireReminder
		if err := json.Unmarshal(raw, &list); err != nil {
			issues = append(issues, "reminders: "+err.Error())
		}
		for i, w := range list {
			r, err := w.reminder()
			if err != nil {
				issues = append(issues, fmt.Sprintf("reminders[%d]: %v", i, err))
				continue
			}
			doc.Reminders = append(doc.Reminders, r)
		}
	}

	// "user" is the older spelling of "users"; both are merged.
	for _, key := range []string{"users", "user"} {
		raw, ok := top[key]
		if !ok {
			continue
		}
		var ids idList
		if err := json.Unmarshal(raw, &ids); err != nil {
			issues = append(issues, key+": "+err.Error())
			continue
		}
		for _, id := range ids {
			doc.SetPing(id, true)
		}
	}

	normalize(doc)
	return doc, issues, nil
}

// normalize fills defaults that older documents may lack.
func normalize(d *Document) {
	if d.Assignments == nil {
		d.Assignments = []Assignment{}
	}
	if d.Reminders == nil {
		d.Reminders = []Reminder{}
	}
	if d.Users == nil {
		d.Users = []string{}
	}
	for i := range d.Assignments {
		a := &d.Assignments[i]
		if a.RemindersSent == nil {
			a.RemindersSent = KeySet{}
		}
		if a.SubmissionTypes == nil {
			a.SubmissionTypes = []string{}
		}
	}
	seen := make(map[string]bool, len(d.Reminders))
	for i := range d.Reminders {
		r := &d.Reminders[i]
		if strings.TrimSpace(r.ID) == "" || seen[r.ID] {
			r.ID = NewID()
		}
		seen[r.ID] = true
		if strings.TrimSpace(r.Description) == "" {
			r.Description = DefaultDescription
		}
		if r.RemindersSent == nil {
			r.RemindersSent = KeySet{}
		}
	}
}

type wireAssignment struct {
	ID              json.Number `json:"id"`
	Name            string      `json:"name"`
	Deadline        *string     `json:"deadline"`
	PointsPossible  *float64    `json:"points_possible"`
	SubmissionTypes []string    `json:"submission_types"`
	SubmissionType  []string    `json:"submission_type"`
	Link            string      `json:"link"`
	RemindersSent   KeySet      `json:"remindersSent"`
}

func (w wireAssignment) assignment() (Assignment, error) {
	id, err := strconv.ParseInt(w.ID.String(), 10, 64)
	if err != nil {
		return Assignment{}, fmt.Errorf("id %q: %w", w.ID, err)
	}
	a := Assignment{
		ID:              id,
		Name:            w.Name,
		PointsPossible:  w.PointsPossible,
		SubmissionTypes: w.SubmissionTypes,
		Link:            w.Link,
		RemindersSent:   w.RemindersSent,
	}
	if a.SubmissionTypes == nil {
		a.SubmissionTypes = w.SubmissionType
	}
	if w.Deadline != nil && strings.TrimSpace(*w.Deadline) != "" {
		t, err := ParseTime(*w.Deadline)
		if err != nil {
			return Assignment{}, fmt.Errorf("deadline: %w", err)
		}
		a.Deadline = t
	}
	return a, nil
}

type wireReminder struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Date          *string `json:"date"`
	UserID        idValue `json:"userId"`
	RemindersSent KeySet  `json:"remindersSent"`
}

func (w wireReminder) reminder() (Reminder, error) {
	r := Reminder{
		ID:            strings.TrimSpace(w.ID),
		Title:         w.Title,
		Description:   w.Description,
		OwnerUserID:   string(w.UserID),
		RemindersSent: w.RemindersSent,
	}
	if w.Date == nil || strings.TrimSpace(*w.Date) == "" {
		return Reminder{}, errors.New("date is missing")
	}
	t, err := ParseTime(*w.Date)
	if err != nil {
		return Reminder{}, fmt.Errorf("date: %w", err)
	}
	r.Date = t
	return r, nil
}

// ParseTime accepts RFC 3339 with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

// idValue accepts a JSON string or number.
type idValue string

func (v *idValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = idValue(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = idValue(n.String())
	return nil
}

// idList accepts a list of ids or a single id.
type idList []string

func (l *idList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var vals []idValue
		if err := json.Unmarshal(b, &vals); err != nil {
			return err
		}
		for _, v := range vals {
			if v != "" {
				*l = append(*l, string(v))
			}
		}
		return nil
	}
	var v idValue
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	if v != "" {
		*l = append(*l, string(v))
	}
	return nil
}
