// Package calendar provides a strictly UTC-normalized timestamp type and the
// calendar-aware recurrence arithmetic described in the recurrence worker's
// next-instant computation. It replaces the timezone-naive datetime
// arithmetic called out as a recurring source bug: every constructor either
// takes an explicit offset or forces UTC, and every public function returns
// a Time that is guaranteed non-naive.
package calendar

import (
	"errors"
	"time"
)

// ErrNaiveTimestamp is returned when a caller hands in a time.Time with no
// usable offset information at all (a true zero value).
var ErrNaiveTimestamp = errors.New("calendar: timestamp has no timezone information")

// Time is a UTC-normalized instant. It is always constructed through From or
// Now, both of which guarantee the underlying time.Time carries the UTC
// location, so a Time value can never silently be timezone-naive.
type Time struct {
	t time.Time
}

// Now returns the current instant in UTC.
func Now() Time {
	return Time{t: time.Now().UTC()}
}

// From normalizes an arbitrary time.Time to UTC. A genuinely zero time.Time
// (no monotonic reading, no location, matches time.Time{}) is rejected: the
// defensive path in the spec is for times that merely lack an explicit
// offset in their *source* representation, not for uninitialized values.
func From(t time.Time) (Time, error) {
	if t.IsZero() {
		return Time{}, ErrNaiveTimestamp
	}
	return Time{t: t.UTC()}, nil
}

// MustFrom is From but panics on error; used only at call sites where the
// input has already been validated (e.g. freshly loaded database rows).
func MustFrom(t time.Time) Time {
	ct, err := From(t)
	if err != nil {
		panic(err)
	}
	return ct
}

// Std returns the underlying standard-library time, always in UTC.
func (c Time) Std() time.Time { return c.t }

// IsZero reports whether this is the unset Time value.
func (c Time) IsZero() bool { return c.t.IsZero() }

// Before, After and Sub delegate to the underlying time.Time.
func (c Time) Before(o Time) bool          { return c.t.Before(o.t) }
func (c Time) After(o Time) bool           { return c.t.After(o.t) }
func (c Time) Sub(o Time) time.Duration    { return c.t.Sub(o.t) }
func (c Time) Add(d time.Duration) Time    { return Time{t: c.t.Add(d)} }
func (c Time) Equal(o Time) bool           { return c.t.Equal(o.t) }

// ISO8601 renders the instant as an ISO-8601 string with an explicit "Z"
// suffix, the wire format mandated for every timestamp.
func (c Time) ISO8601() string {
	return c.t.Format(time.RFC3339Nano)
}

// ParseISO8601 parses a bare (unquoted) ISO-8601 string, as received in a
// request body field typed as a plain JSON string rather than decoded via
// UnmarshalJSON.
func ParseISO8601(s string) (Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return Time{}, err
		}
	}
	return Time{t: t.UTC()}, nil
}

// MarshalJSON implements json.Marshaler using the wire ISO-8601 form.
func (c Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.ISO8601() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler, forcing the parsed instant to UTC.
func (c *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	c.t = parsed.UTC()
	return nil
}
