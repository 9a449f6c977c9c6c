// Package monthkey buckets instants into calendar months of a fixed civil
// timezone and builds the month filter used by every leaderboard query,
// including the launch carryover rule.
package monthkey

import (
	"errors"
	"fmt"
	"time"
)

const layout = "2006-01"

var ErrInvalidKey = errors.New("invalid month key")

// Calculator is safe for concurrent use.
type Calculator struct {
	loc            *time.Location
	launchAt       time.Time
	carryoverMonth string
}

type Option func(*Calculator) error

// WithCarryover counts entries of the month before carryoverMonth that
// joined after launchAt towards carryoverMonth instead of their own month.
func WithCarryover(launchAt time.Time, carryoverMonth string) Option {
	return func(c *Calculator) error {
		if launchAt.IsZero() {
			return errors.New("carryover launch instant is zero")
		}
		if _, err := Parse(carryoverMonth); err != nil {
			return fmt.Errorf("carryover month: %w", err)
		}
		c.launchAt = launchAt
		c.carryoverMonth = carryoverMonth
		return nil
	}
}

func New(loc *time.Location, opts ...Option) (*Calculator, error) {
	if loc == nil {
		return nil, errors.New("timezone is required")
	}
	c := &Calculator{loc: loc}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Location is the civil timezone month keys are computed in.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// ForInstant formats t as YYYY-MM in the calculator's timezone.
func (c *Calculator) ForInstant(t time.Time) string {
	return t.In(c.loc).Format(layout)
}

// Previous returns the calendar month before key.
func (c *Calculator) Previous(key string) (string, error) {
	return Previous(key)
}

// Filter returns the predicate selecting the log entries that belong to key.
func (c *Calculator) Filter(key string) (Filter, error) {
	if _, err := Parse(key); err != nil {
		return Filter{}, err
	}
	f := Filter{Month: key}
	if c.carryoverMonth == "" {
		return f, nil
	}
	prev, err := Previous(c.carryoverMonth)
	if err != nil {
		return Filter{}, err
	}
	switch key {
	case c.carryoverMonth:
		f.CarryMonth = prev
		f.CarryAfter = c.launchAt
	case prev:
		f.ExcludeAfter = c.launchAt
	}
	return f, nil
}

// Parse validates a YYYY-MM key and returns the first instant of that
// month in UTC.
func Parse(key string) (time.Time, error) {
	t, err := time.Parse(layout, key)
	if err != nil || t.Format(layout) != key {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return t, nil
}

func Previous(key string) (string, error) {
	t, err := Parse(key)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, -1, 0).Format(layout), nil
}

// Filter selects entries of Month, plus entries of CarryMonth that joined
// strictly after CarryAfter when a carryover applies. When ExcludeAfter is
// set, entries of Month that joined strictly after it are left out: they
// were carried into the next month.
type Filter struct {
	Month        string
	CarryMonth   string
	CarryAfter   time.Time
	ExcludeAfter time.Time
}

// Months lists the month keys whose entries have to be read to evaluate
// the filter.
func (f Filter) Months() []string {
	if f.CarryMonth == "" {
		return []string{f.Month}
	}
	return []string{f.Month, f.CarryMonth}
}

func (f Filter) Match(monthKey string, joinedAt time.Time) bool {
	if monthKey == f.Month {
		return f.ExcludeAfter.IsZero() || !joinedAt.After(f.ExcludeAfter)
	}
	return f.CarryMonth != "" && monthKey == f.CarryMonth && joinedAt.After(f.CarryAfter)
}
