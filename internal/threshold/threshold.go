// Package threshold maps time-remaining-until-due onto the reminder ladder.
//
// Buckets are ordered by urgency and compared with "<=", so a value sitting
// exactly on a boundary resolves to the more urgent bucket.
package threshold

import "time"

// Key identifies a bucket. It is what gets persisted in remindersSent.
type Key string

const (
	KeyNone Key = "none"
	KeyNow  Key = "0h"
	Key1h   Key = "1h"
	Key3h   Key = "3h"
	Key6h   Key = "6h"
	Key24h  Key = "24h"
	Key168h Key = "168h"
)

// Display colors (RGB).
const (
	ColorRed    = 0xFF0000
	ColorOrange = 0xFFA500
	ColorYellow = 0xFFFF00
	ColorGreen  = 0x00FF00
	ColorBlue   = 0x3498DB
)

type Bucket struct {
	Key   Key
	Label string
	Color int
}

// Due reports whether the bucket should produce a reminder.
func (b Bucket) Due() bool { return b.Key != KeyNone && b.Key != "" }

// Terminal reports whether reaching the bucket ends the item's life.
func (b Bucket) Terminal() bool { return b.Key == KeyNow }

type step struct {
	max    time.Duration
	bucket Bucket
}

var (
	bucketNow  = Bucket{Key: KeyNow, Label: "due now", Color: ColorRed}
	bucket1h   = Bucket{Key: Key1h, Label: "≈1 hour left", Color: ColorRed}
	bucket3h   = Bucket{Key: Key3h, Label: "3 hours left", Color: ColorOrange}
	bucket6h   = Bucket{Key: Key6h, Label: "6 hours left", Color: ColorOrange}
	bucket24h  = Bucket{Key: Key24h, Label: "1 day left", Color: ColorYellow}
	bucket168h = Bucket{Key: Key168h, Label: "1 week left", Color: ColorYellow}
	bucketNone = Bucket{Key: KeyNone, Color: ColorGreen}
)

var assignmentLadder = []step{
	{time.Hour, bucket1h},
	{3 * time.Hour, bucket3h},
	{6 * time.Hour, bucket6h},
	{24 * time.Hour, bucket24h},
}

var customLadder = []step{
	{0, bucketNow},
	{time.Hour, bucket1h},
	{3 * time.Hour, bucket3h},
	{6 * time.Hour, bucket6h},
	{24 * time.Hour, bucket24h},
	{168 * time.Hour, bucket168h},
}

func classify(ladder []step, remaining time.Duration) Bucket {
	for _, s := range ladder {
		if remaining <= s.max {
			return s.bucket
		}
	}
	return bucketNone
}

// Classify evaluates the assignment ladder. Overdue input maps to 1h.
func Classify(remaining time.Duration) Bucket { return classify(assignmentLadder, remaining) }

// ClassifyCustom evaluates the custom reminder ladder, which adds a one week
// bucket and the terminal "due now" bucket.
func ClassifyCustom(remaining time.Duration) Bucket { return classify(customLadder, remaining) }

var ranks = map[Key]int{
	KeyNone: 0,
	Key168h: 1,
	Key24h:  2,
	Key6h:   3,
	Key3h:   4,
	Key1h:   5,
	KeyNow:  6,
}

// Rank orders keys by urgency; higher is more urgent. Unknown keys rank -1.
func Rank(k Key) int {
	r, ok := ranks[k]
	if !ok {
		return -1
	}
	return r
}

// Lookup returns the bucket for a persisted key.
func Lookup(k Key) (Bucket, bool) {
	for _, s := range customLadder {
		if s.bucket.Key == k {
			return s.bucket, true
		}
	}
	if k == KeyNone {
		return bucketNone, true
	}
	return Bucket{}, false
}
