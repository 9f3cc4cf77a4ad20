/*
errors.go - Centralized error types for the grant data model

PURPOSE:
  All error types in one place for consistency and discoverability.
  The analytics engine distinguishes three failure families:

ERROR CATEGORIES:
  1. Invalid input - a single malformed record (bad dates, negative award,
     dangling reference). Never fatal: reported as an Issue and the record is
     excluded from aggregates.
  2. Undefined arithmetic - division by a zero budget or target. Never an
     error at all: represented as an undefined Ratio in the output.
  3. Clock errors - the current-date source is unavailable. Fatal: every
     temporal computation depends on it, so the whole run is aborted.

USAGE:
  if errors.Is(err, grant.ErrClockUnavailable) {
      // abort, surface to the caller
  }

SEE ALSO:
  - validate.go: Produces Issues from InvalidInput conditions
  - time.go: Clock implementations that produce ClockError
*/
package grant

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrClockUnavailable is the root of every ClockError.
	ErrClockUnavailable = errors.New("clock unavailable")

	// ErrNoClock is returned when no clock was configured at all.
	ErrNoClock = errors.New("no clock configured")

	// ErrNoDate is returned when a clock yields the zero date.
	ErrNoDate = errors.New("clock returned no date")

	// ErrInvalidInput is the root of every per-record validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedDate is returned when a date string cannot be parsed.
	ErrMalformedDate = errors.New("malformed date")

	// ErrGrantNotFound is returned when a referenced grant doesn't exist.
	ErrGrantNotFound = errors.New("grant not found")

	// ErrSnapshotFetch is returned when the store read fails or times out.
	ErrSnapshotFetch = errors.New("snapshot fetch failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ClockError aborts a run. Cause is the underlying failure.
type ClockError struct {
	Cause error
}

func (e *ClockError) Error() string {
	if e.Cause == nil {
		return ErrClockUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrClockUnavailable, e.Cause)
}

func (e *ClockError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrClockUnavailable}
	}
	return []error{ErrClockUnavailable, e.Cause}
}

// RecordError describes why a single record is invalid.
type RecordError struct {
	Kind     RecordKind
	RecordID string
	Code     IssueCode
	Message  string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s (%s)", e.Kind, e.RecordID, e.Message, e.Code)
}

func (e *RecordError) Unwrap() error {
	return ErrInvalidInput
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal returns true if the error must abort an engine run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrClockUnavailable) || errors.Is(err, ErrSnapshotFetch)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGrantNotFound)
}

func asClockError(err error, target **ClockError) bool {
	return errors.As(err, target)
}
