package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"duebot/internal/threshold"
)

// KeySet is an ordered, duplicate-free list of fired threshold keys.
type KeySet []threshold.Key

func (s KeySet) Has(k threshold.Key) bool {
	for _, v := range s {
		if v == k {
			return true
		}
	}
	return false
}

// Add appends k if missing and reports whether it was added.
func (s *KeySet) Add(k threshold.Key) bool {
	if s.Has(k) {
		return false
	}
	*s = append(*s, k)
	return true
}

func (s KeySet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]threshold.Key(s))
}

// UnmarshalJSON accepts string keys ("24h") and the older numeric hour form
// (24, 0.5, 72). Numbers map to the ladder bucket covering that many hours
// left; keys no ladder knows are dropped. The result is ordered by urgency.
func (s *KeySet) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = KeySet{}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("remindersSent: %w", err)
	}
	out := make(KeySet, 0, len(raw))
	for _, r := range raw {
		k, err := decodeKey(r)
		if err != nil {
			return err
		}
		if bk, ok := threshold.Lookup(k); ok && bk.Due() {
			out.Add(k)
		}
	}
	slices.SortStableFunc(out, func(a, b threshold.Key) int {
		return threshold.Rank(a) - threshold.Rank(b)
	})
	*s = out
	return nil
}

func decodeKey(r json.RawMessage) (threshold.Key, error) {
	var str string
	if err := json.Unmarshal(r, &str); err == nil {
		str = strings.TrimSpace(str)
		if n, err := strconv.ParseFloat(str, 64); err == nil {
			return hoursKey(n), nil
		}
		return threshold.Key(str), nil
	}
	var n float64
	if err := json.Unmarshal(r, &n); err != nil {
		return "", fmt.Errorf("remindersSent: unsupported key %s", string(r))
	}
	return hoursKey(n), nil
}

// hoursKey maps a legacy hour threshold onto the custom ladder, the wider of
// the two, so 72 ("3 days left") becomes 168h and 0.5 becomes 1h.
func hoursKey(h float64) threshold.Key {
	return threshold.ClassifyCustom(time.Duration(h * float64(time.Hour))).Key
}
