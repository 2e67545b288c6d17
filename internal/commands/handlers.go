package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmhodges/clock"

	"duebot/internal/coursesync"
	"duebot/internal/notify"
	"duebot/internal/store"
	"duebot/internal/transport"
	logx "duebot/pkg/logx"
)

const (
	// DeletePrefix is the callback prefix of delete-reminder buttons.
	DeletePrefix = "delrem"
	maxChoices   = 25

	msgSaveFailed     = "An error occurred while saving your reminder. Please try again later."
	msgDeleteInvalid  = "Invalid input. Please select a valid reminder from the autocomplete options."
	msgDeleteFailed   = "An error occurred while deleting the reminder. Please try again later."
	msgPingFailed     = "An error occurred while updating your preferences."
	msgAddUsage       = "Usage: /add_reminder title | MM-DD-YYYY | HH:MM [AM/PM] | description"
	msgPingUsage      = "Usage: /ping on|off"
	msgPingEnabled    = "Pings enabled for you!"
	msgPingAlreadyOn  = "Pings are already enabled for you!"
	msgPingDisabled   = "Pings disabled for you!"
	msgPingAlreadyOff = "Pings are already disabled for you!"
)

var numericRe = regexp.MustCompile(`^-?\d+$`)

// SyncReporter exposes the last assignment sync.
type SyncReporter interface {
	Last() coursesync.Result
}

// DeliveryReporter exposes notification counters.
type DeliveryReporter interface {
	Stats() notify.Stats
}

type Handlers struct {
	Store    *store.Store
	Clock    clock.Clock
	Location *time.Location
	Sync     SyncReporter     // optional
	Delivery DeliveryReporter // optional
}

// Commands returns the bot's command set.
func (h *Handlers) Commands() []Command {
	return []Command{
		{
			Name:        "add_reminder",
			Description: "add a custom reminder",
			Usage:       "/add_reminder title | MM-DD-YYYY | HH:MM [AM/PM] | description",
			Handle:      h.AddReminder,
		},
		{
			Name:        "delete_reminder",
			Aliases:     []string{"del_reminder"},
			Description: "delete a custom reminder",
			Usage:       "/delete_reminder [id]",
			Handle:      h.DeleteReminder,
		},
		{
			Name:        "list_reminders",
			Aliases:     []string{"reminders"},
			Description: "list custom reminders",
			Handle:      h.ListReminders,
		},
		{
			Name:        "ping",
			Description: "toggle being pinged on alerts",
			Usage:       "/ping on|off",
			Handle:      h.Ping,
		},
		{
			Name:        "status",
			Description: "show tracked items and last sync",
			Handle:      h.Status,
		},
	}
}

func (h *Handlers) Callbacks() []CallbackRoute {
	return []CallbackRoute{{Prefix: DeletePrefix, Handle: h.deleteByButton}}
}

func (h *Handlers) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock.Now()
}

func (h *Handlers) loc() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func (h *Handlers) formatDate(t time.Time) string {
	return t.In(h.loc()).Format(notify.DateLayout)
}

// AddReminder expects "title | MM-DD-YYYY | time | description".
func (h *Handlers) AddReminder(ctx context.Context, req *Request) (Reply, error) {
	parts := splitFields(req.Args)
	if len(parts) < 3 || parts[0] == "" {
		return Reply{}, userErr(msgAddUsage)
	}
	title := parts[0]
	description := ""
	if len(parts) > 3 {
		description = strings.Join(parts[3:], " | ")
	}

	when, err := ParseReminderTime(parts[1], parts[2], h.now(), h.loc())
	if err != nil {
		return Reply{}, err
	}

	var saved store.Reminder
	err = h.Store.Update(ctx, func(d *store.Document) error {
		saved = d.AppendReminder(store.Reminder{
			Title:       title,
			Description: description,
			Date:        when.UTC(),
			OwnerUserID: req.FromID,
		})
		return nil
	})
	if err != nil {
		req.Log.Error("saving reminder failed", logx.Err(err))
		return Reply{}, userErr(msgSaveFailed)
	}
	return Reply{Text: fmt.Sprintf("Reminder %q set for %s.", saved.Title, h.formatDate(saved.Date))}, nil
}

// DeleteReminder removes a reminder by id. Without an argument it offers up
// to 25 reminders as buttons.
func (h *Handlers) DeleteReminder(ctx context.Context, req *Request) (Reply, error) {
	id := strings.TrimSpace(req.Args)
	if id == "" {
		return h.deleteChoices(ctx), nil
	}
	// Positions shift after every delete; only stable ids are accepted.
	if numericRe.MatchString(id) {
		return Reply{}, userErr(msgDeleteInvalid)
	}
	return h.deleteByID(ctx, req, id)
}

func (h *Handlers) deleteByButton(ctx context.Context, req *Request) (Reply, error) {
	return h.deleteByID(ctx, req, strings.TrimSpace(req.Payload))
}

func (h *Handlers) deleteByID(ctx context.Context, req *Request, id string) (Reply, error) {
	var (
		removed store.Reminder
		found   bool
	)
	err := h.Store.Update(ctx, func(d *store.Document) error {
		removed, found = d.RemoveReminder(id)
		if !found {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		req.Log.Error("deleting reminder failed", logx.Err(err))
		return Reply{}, userErr(msgDeleteFailed)
	}
	if !found {
		return Reply{}, userErr(msgDeleteInvalid)
	}
	return Reply{Text: fmt.Sprintf("Reminder %q scheduled for %s has been deleted.", removed.Title, h.formatDate(removed.Date))}, nil
}

func (h *Handlers) deleteChoices(ctx context.Context) Reply {
	var rows [][]transport.Button
	h.Store.Reload(ctx)
	h.Store.View(func(d *store.Document) {
		for _, r := range d.Reminders {
			if len(rows) == maxChoices {
				break
			}
			rows = append(rows, []transport.Button{{
				Text: r.Title + " - " + h.formatDate(r.Date),
				Data: DeletePrefix + ":" + r.ID,
			}})
		}
	})
	if len(rows) == 0 {
		return Reply{Text: "There are no reminders to delete.", Ephemeral: true}
	}
	return Reply{Text: "Select a reminder to delete:", Ephemeral: true, Buttons: rows}
}

func (h *Handlers) ListReminders(ctx context.Context, _ *Request) (Reply, error) {
	now := h.now()
	var b strings.Builder
	h.Store.Reload(ctx)
	h.Store.View(func(d *store.Document) {
		for _, r := range d.Reminders {
			fmt.Fprintf(&b, "• %s - %s (%s)\n  id: %s\n", r.Title, h.formatDate(r.Date), notify.TimeLeft(r.Date, now), r.ID)
		}
	})
	if b.Len() == 0 {
		return Reply{Text: "No reminders set.", Ephemeral: true}, nil
	}
	return Reply{Text: "Reminders:\n" + strings.TrimRight(b.String(), "\n"), Ephemeral: true}, nil
}

func (h *Handlers) Ping(ctx context.Context, req *Request) (Reply, error) {
	var on bool
	switch strings.ToLower(strings.TrimSpace(req.Args)) {
	case "on", "true", "yes", "enable":
		on = true
	case "off", "false", "no", "disable":
		on = false
	default:
		return Reply{}, userErr(msgPingUsage)
	}

	var changed bool
	err := h.Store.Update(ctx, func(d *store.Document) error {
		changed = d.SetPing(req.FromID, on)
		if !changed {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		req.Log.Error("updating ping preference failed", logx.Err(err))
		return Reply{}, userErr(msgPingFailed)
	}

	var text string
	switch {
	case on && changed:
		text = msgPingEnabled
	case on:
		text = msgPingAlreadyOn
	case changed:
		text = msgPingDisabled
	default:
		text = msgPingAlreadyOff
	}
	return Reply{Text: text, Ephemeral: true}, nil
}

func (h *Handlers) Status(_ context.Context, _ *Request) (Reply, error) {
	var assignments, reminders, users int
	h.Store.View(func(d *store.Document) {
		assignments, reminders, users = len(d.Assignments), len(d.Reminders), len(d.Users)
	})

	lines := []string{
		"Status:",
		fmt.Sprintf("Assignments tracked: %d", assignments),
		fmt.Sprintf("Custom reminders: %d", reminders),
		fmt.Sprintf("Users with pings: %d", users),
	}
	if h.Sync != nil {
		last := h.Sync.Last()
		switch {
		case last.At.IsZero():
			lines = append(lines, "Last sync: never")
		case last.Err != nil:
			lines = append(lines, fmt.Sprintf("Last sync: %s (failed: %v)", humanize.RelTime(last.At, h.now(), "ago", "from now"), last.Err))
		default:
			lines = append(lines, fmt.Sprintf("Last sync: %s (%d fetched, %d new, %d updated)",
				humanize.RelTime(last.At, h.now(), "ago", "from now"), last.Fetched, last.Added, last.Updated))
		}
	}
	if h.Delivery != nil {
		st := h.Delivery.Stats()
		lines = append(lines, fmt.Sprintf("Alerts sent: %d, failed: %d", st.Sent, st.Failed))
	}
	return Reply{Text: strings.Join(lines, "\n"), Ephemeral: true}, nil
}
