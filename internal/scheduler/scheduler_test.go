package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "duebot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "one second", raw: "1s", kind: SpecInterval, source: "duration", duration: time.Second},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every prefix", raw: "every:00:10", kind: SpecInterval, source: "hhmm", duration: 10 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "-5m", "00:00", "01:75", "cron:", "interval:soon"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Errorf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestAddScheduleValidation(t *testing.T) {
	t.Parallel()
	s := New(time.UTC, logx.Nop())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.AddSchedule("sync", "10m", time.Minute, noop))
	assert.ErrorIs(t, s.AddSchedule("sync", "1s", 0, noop), ErrDuplicate)
	assert.Error(t, s.AddSchedule("bad", "61 * * * *", 0, noop))
	assert.Error(t, s.AddSchedule("", "1s", 0, noop))
}

func TestRunNowRecordsOutcome(t *testing.T) {
	t.Parallel()
	s := New(time.UTC, logx.Nop())

	boom := errors.New("boom")
	var deadline bool
	require.NoError(t, s.AddSchedule("fail", "1h", 50*time.Millisecond, func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return boom
	}))
	require.NoError(t, s.AddSchedule("panic", "1h", 0, func(context.Context) error {
		panic("oops")
	}))

	assert.ErrorIs(t, s.RunNow(context.Background(), "fail"), boom)
	assert.True(t, deadline)
	assert.ErrorContains(t, s.RunNow(context.Background(), "panic"), "panic: oops")
	assert.Error(t, s.RunNow(context.Background(), "missing"))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "fail", snap[0].Name)
	assert.Equal(t, 1, snap[0].Runs)
	assert.Equal(t, 1, snap[0].Failures)
	assert.Equal(t, "boom", snap[0].LastErr)
	assert.Equal(t, "panic", snap[1].Name)
}

func TestStartRunsIntervalJobs(t *testing.T) {
	t.Parallel()
	s := New(time.UTC, logx.Nop())

	var runs atomic.Int32
	require.NoError(t, s.AddSchedule("tick", "1s", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.False(t, snap[0].Next.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestStopCancelsRunningJob(t *testing.T) {
	t.Parallel()
	s := New(time.UTC, logx.Nop())

	started := make(chan struct{}, 1)
	require.NoError(t, s.AddSchedule("slow", "1s", 0, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}))
	s.Start(context.Background())

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
