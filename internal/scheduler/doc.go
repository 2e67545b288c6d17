// Package scheduler runs the bot's periodic jobs on robfig/cron.
//
// A schedule is either a cron expression or a fixed interval (see
// ParseSchedule). Every job run gets its own timeout, overlapping runs of the
// same job are skipped, and panics and errors are logged without stopping
// the schedule.
package scheduler
