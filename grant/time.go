package grant

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granular calendar date (grants, deadlines and expenses are dated)
// =============================================================================

// DateLayout is the wire and storage format for every Date.
const DateLayout = "2006-01-02"

// Date is a calendar day normalized to UTC midnight.
// The zero Date means "no date" (e.g. a deliverable that is not completed).
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string. A timestamp whose date part is
// followed by 'T' or a space is accepted and truncated to the date.
func ParseDate(s string) (Date, error) {
	day := s
	if len(s) > len(DateLayout) {
		if sep := s[len(DateLayout)]; sep != 'T' && sep != ' ' {
			return Date{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
		}
		day = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, day)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return DateOf(t), nil
}

// MustParseDate panics on malformed input. Only for tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// DaysBetween returns the signed number of days from `from` to `to`.
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD", or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CLOCK - Explicit "current date" source threaded into every computation
// =============================================================================

// Clock supplies the current date. Every time-relative computation takes the
// date from a Clock once per run; nothing reads the wall clock directly.
type Clock interface {
	Today() (Date, error)
}

// SystemClock reads the wall clock in Location (UTC when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Today() (Date, error) {
	now := time.Now()
	if c.Location != nil {
		now = now.In(c.Location)
	} else {
		now = now.UTC()
	}
	return DateOf(now), nil
}

// FixedClock always returns the same date. A zero date is a clock failure.
type FixedClock struct {
	Date Date
}

func (c FixedClock) Today() (Date, error) {
	if c.Date.IsZero() {
		return Date{}, &ClockError{Cause: ErrNoDate}
	}
	return c.Date, nil
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() (Date, error)

func (f ClockFunc) Today() (Date, error) { return f() }

// Now reads clock and wraps any failure as a ClockError.
func Now(clock Clock) (Date, error) {
	if clock == nil {
		return Date{}, &ClockError{Cause: ErrNoClock}
	}
	today, err := clock.Today()
	if err != nil {
		var ce *ClockError
		if asClockError(err, &ce) {
			return Date{}, ce
		}
		return Date{}, &ClockError{Cause: err}
	}
	if today.IsZero() {
		return Date{}, &ClockError{Cause: ErrNoDate}
	}
	return today, nil
}

// =============================================================================
// WINDOW - A grant's active [start, end] interval
// =============================================================================

// Window is an inclusive date range.
type Window struct {
	Start Date
	End   Date
}

// Contains returns true if d is within [Start, End].
func (w Window) Contains(d Date) bool {
	return d.AfterOrEqual(w.Start) && d.BeforeOrEqual(w.End)
}

// Days returns the length of the window in days (End - Start).
func (w Window) Days() int { return DaysBetween(w.Start, w.End) }

func (w Window) String() string {
	return "[" + w.Start.String() + ", " + w.End.String() + "]"
}
