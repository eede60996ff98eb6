package cryptox

import (
	"time"
	"unicode"
	"unicode/utf16"
)

// TimestampWindow is how far a request timestamp may drift from the
// server clock in either direction.
const TimestampWindow = 15 * time.Minute

// Username and password length bounds.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 128
	MinPasswordLength = 6
	MaxPasswordLength = 128
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// ParseTimestamp accepts the ISO-8601 forms clients send. Values without a
// zone are read as UTC.
func ParseTimestamp(ts string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsTimestampValid reports whether ts lies within TimestampWindow of now,
// bounds included. Unparseable input is never valid.
func IsTimestampValid(ts string, now time.Time) bool {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return false
	}
	d := now.Sub(t)
	if d < 0 {
		d = -d
	}
	return d <= TimestampWindow
}

// FormatTimestamp renders t the way the reference client signs it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// IsValidUsername checks the length, 3 to 128 UTF-16 code units, and that
// every character is a letter, a digit, '_' or '.'. Letters and digits are
// Unicode classes; characters outside the Basic Multilingual Plane are
// rejected.
func IsValidUsername(s string) bool {
	n := 0
	for _, c := range s {
		if c > maxBMP {
			return false
		}
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' && c != '.' {
			return false
		}
		n++
	}
	return n >= MinUsernameLength && n <= MaxUsernameLength
}

// IsValidPassword checks password length only, in UTF-16 code units.
func IsValidPassword(s string) bool {
	n := utf16Len(s)
	return n >= MinPasswordLength && n <= MaxPasswordLength
}

// maxBMP is the largest rune encoded as a single UTF-16 unit.
const maxBMP = 0xFFFF

func utf16Len(s string) int {
	n := 0
	for _, c := range s {
		n += utf16.RuneLen(c)
	}
	return n
}
