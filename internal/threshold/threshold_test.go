package threshold

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    time.Duration
		want  Key
		color int
	}{
		{-2 * time.Hour, Key1h, ColorRed},
		{0, Key1h, ColorRed},
		{30 * time.Minute, Key1h, ColorRed},
		{time.Hour, Key1h, ColorRed},
		{time.Hour + time.Nanosecond, Key3h, ColorOrange},
		{3 * time.Hour, Key3h, ColorOrange},
		{5 * time.Hour, Key6h, ColorOrange},
		{6 * time.Hour, Key6h, ColorOrange},
		{12 * time.Hour, Key24h, ColorYellow},
		{24 * time.Hour, Key24h, ColorYellow},
		{24*time.Hour + time.Second, KeyNone, ColorGreen},
		{200 * time.Hour, KeyNone, ColorGreen},
	}

	for _, tt := range tests {
		got := Classify(tt.in)
		if got.Key != tt.want || got.Color != tt.color {
			t.Fatalf("Classify(%s) = %+v, want key=%s color=%#x", tt.in, got, tt.want, tt.color)
		}
	}
}

func TestClassifyCustom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want Key
	}{
		{-time.Minute, KeyNow},
		{0, KeyNow},
		{time.Second, Key1h},
		{2 * time.Hour, Key3h},
		{24 * time.Hour, Key24h},
		{100 * time.Hour, Key168h},
		{168 * time.Hour, Key168h},
		{169 * time.Hour, KeyNone},
	}

	for _, tt := range tests {
		if got := ClassifyCustom(tt.in).Key; got != tt.want {
			t.Fatalf("ClassifyCustom(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if !ClassifyCustom(0).Terminal() {
		t.Fatalf("0h must be terminal")
	}
	if ClassifyCustom(time.Hour).Terminal() {
		t.Fatalf("1h must not be terminal")
	}
}

func TestClassifyMonotonic(t *testing.T) {
	t.Parallel()

	for _, fn := range []func(time.Duration) Bucket{Classify, ClassifyCustom} {
		prev := -1
		for d := 200 * time.Hour; d >= -time.Hour; d -= time.Minute {
			b := fn(d)
			r := Rank(b.Key)
			if r < prev {
				t.Fatalf("rank decreased at %s: %s (%d) after %d", d, b.Key, r, prev)
			}
			prev = r
			if b != fn(d) {
				t.Fatalf("non-deterministic at %s", d)
			}
		}
	}
}

func TestBucketDue(t *testing.T) {
	t.Parallel()

	if Classify(48 * time.Hour).Due() {
		t.Fatalf("none bucket must not be due")
	}
	if !Classify(48 * time.Minute).Due() {
		t.Fatalf("1h bucket must be due")
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	b, ok := Lookup(Key6h)
	if !ok || b.Label != "6 hours left" {
		t.Fatalf("Lookup(6h) = %+v, %v", b, ok)
	}
	if _, ok := Lookup("5h"); ok {
		t.Fatalf("Lookup(5h) should fail")
	}
	if Rank("bogus") != -1 {
		t.Fatalf("unknown rank should be -1")
	}
}
