// Package clock provides the exchange wall-clock and market-hours predicate
// used across the supervisor. Workers depend on the Clock interface rather
// than calling time.Now directly so tests can inject a fixed instant.
package clock

import "time"

// Clock returns the current time. Real wraps time.Now; Fake returns a
// constant instant for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock, anchored to the exchange timezone.
type Real struct {
	loc *time.Location
}

// NewReal returns a Real clock in America/New_York, falling back to UTC if
// the timezone database isn't available on the host.
func NewReal() Real {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Real{loc: loc}
}

// Now returns the current wall-clock time in the exchange timezone.
func (r Real) Now() time.Time {
	return time.Now().In(r.loc)
}

// Fake is a Clock that always returns a fixed instant, for tests.
type Fake struct {
	At time.Time
}

// Now returns the fixed instant.
func (f Fake) Now() time.Time { return f.At }

// MarketIsOpen reports whether now falls within NYSE regular trading
// hours (09:30–16:00, Monday–Friday). Holidays are deliberately ignored
// per the spec; this is a wall-clock predicate, not a calendar.
func MarketIsOpen(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	open := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, now.Location())
	closeT := time.Date(now.Year(), now.Month(), now.Day(), 16, 0, 0, 0, now.Location())
	return !now.Before(open) && now.Before(closeT)
}
