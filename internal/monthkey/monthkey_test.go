package monthkey

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
)

func amsterdam(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	return loc
}

func TestForInstantUsesCivilTimezone(t *testing.T) {
	calc, err := New(amsterdam(t))
	require.NoError(t, err)

	// 23:30 UTC on Jan 31 is already February in Amsterdam.
	instant := time.Date(2026, 1, 31, 23, 30, 0, 0, time.UTC)
	require.Equal(t, "2026-02", calc.ForInstant(instant))
	require.Equal(t, "2026-01", calc.ForInstant(instant.Add(-time.Hour)))
}

func TestPrevious(t *testing.T) {
	cases := map[string]string{
		"2026-03": "2026-02",
		"2026-01": "2025-12",
		"2000-12": "2000-11",
	}
	for in, want := range cases {
		got, err := Previous(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "2026-13", "2026-1", "26-01", "2026/01"} {
		_, err := Previous(bad)
		require.True(t, errors.Is(err, ErrInvalidKey), bad)
	}
}

func TestFilterWithoutCarryover(t *testing.T) {
	calc, err := New(amsterdam(t))
	require.NoError(t, err)

	f, err := calc.Filter("2026-02")
	require.NoError(t, err)
	require.Equal(t, []string{"2026-02"}, f.Months())
	require.True(t, f.Match("2026-02", time.Now()))
	require.False(t, f.Match("2026-01", time.Now()))
}

func TestCarryoverInclusion(t *testing.T) {
	loc := amsterdam(t)
	launch, err := time.Parse(time.RFC3339, "2026-01-28T00:00:00+01:00")
	require.NoError(t, err)

	calc, err := New(loc, WithCarryover(launch, "2026-02"))
	require.NoError(t, err)

	joined, err := time.Parse(time.RFC3339, "2026-01-28T01:00:00+01:00")
	require.NoError(t, err)
	require.Equal(t, "2026-01", calc.ForInstant(joined))

	feb, err := calc.Filter("2026-02")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"2026-02", "2026-01"}, feb.Months())
	require.True(t, feb.Match("2026-01", joined))

	// A carried entry counts once: it is left out of its own month.
	jan, err := calc.Filter("2026-01")
	require.NoError(t, err)
	require.Equal(t, []string{"2026-01"}, jan.Months())
	require.False(t, jan.Match("2026-01", joined))
	require.True(t, jan.Match("2026-01", launch))
	require.True(t, jan.Match("2026-01", launch.Add(-time.Minute)))
	require.False(t, jan.Match("2026-02", joined))

	// Joins at or before the launch instant stay out of the carryover month.
	require.False(t, feb.Match("2026-01", launch))
	require.False(t, feb.Match("2026-01", launch.Add(-time.Minute)))

	// Other months never carry over.
	mar, err := calc.Filter("2026-03")
	require.NoError(t, err)
	require.False(t, mar.Match("2026-02", launch.Add(30*24*time.Hour)))
	dec, err := calc.Filter("2025-12")
	require.NoError(t, err)
	require.True(t, dec.Match("2025-12", launch))
}

func TestNewRejectsBadCarryover(t *testing.T) {
	_, err := New(amsterdam(t), WithCarryover(time.Now(), "2026-2"))
	require.Error(t, err)

	_, err = New(nil)
	require.Error(t, err)
}
