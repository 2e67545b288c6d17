package commands

import (
	"errors"
	"testing"
	"time"
)

func TestParseReminderTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2030, 3, 10, 12, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}

	tests := []struct {
		name    string
		date    string
		clock   string
		loc     *time.Location
		want    time.Time
		wantErr string
	}{
		{name: "24h", date: "03-11-2030", clock: "17:30", loc: time.UTC, want: time.Date(2030, 3, 11, 17, 30, 0, 0, time.UTC)},
		{name: "24h single digit hour", date: "03-11-2030", clock: "9:05", loc: time.UTC, want: time.Date(2030, 3, 11, 9, 5, 0, 0, time.UTC)},
		{name: "12h pm", date: "03-11-2030", clock: "5:30 PM", loc: time.UTC, want: time.Date(2030, 3, 11, 17, 30, 0, 0, time.UTC)},
		{name: "12h noon", date: "03-11-2030", clock: "12:00pm", loc: time.UTC, want: time.Date(2030, 3, 11, 12, 0, 0, 0, time.UTC)},
		{name: "12h midnight", date: "03-11-2030", clock: "12:15 am", loc: time.UTC, want: time.Date(2030, 3, 11, 0, 15, 0, 0, time.UTC)},
		{name: "zone applied", date: "03-11-2030", clock: "08:00", loc: ny, want: time.Date(2030, 3, 11, 12, 0, 0, 0, time.UTC)},
		{name: "bad date format", date: "2030-03-11", clock: "08:00", loc: time.UTC, wantErr: msgBadDate},
		{name: "short date", date: "3-11-2030", clock: "08:00", loc: time.UTC, wantErr: msgBadDate},
		{name: "bad time", date: "03-11-2030", clock: "25:00", loc: time.UTC, wantErr: msgBadTime},
		{name: "13 pm", date: "03-11-2030", clock: "13:00 PM", loc: time.UTC, wantErr: msgBadTime},
		{name: "overflowing day", date: "02-31-2031", clock: "08:00", loc: time.UTC, wantErr: msgBadDateTime},
		{name: "month 13", date: "13-01-2031", clock: "08:00", loc: time.UTC, wantErr: msgBadDateTime},
		{name: "past", date: "03-09-2030", clock: "08:00", loc: time.UTC, wantErr: msgBadDateTime},
		{name: "exactly now", date: "03-10-2030", clock: "12:00", loc: time.UTC, wantErr: msgBadDateTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReminderTime(tt.date, tt.clock, now, tt.loc)
			if tt.wantErr != "" {
				var ue *UserError
				if !errors.As(err, &ue) || ue.Msg != tt.wantErr {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
