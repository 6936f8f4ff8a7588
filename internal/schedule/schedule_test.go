package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{in: "12:00AM", hour: 0, minute: 0},
		{in: "12:00PM", hour: 12, minute: 0},
		{in: "1:00PM", hour: 13, minute: 0},
		{in: "11:59PM", hour: 23, minute: 59},
		{in: "10:00AM", hour: 10, minute: 0},
		{in: "10:00 am", hour: 10, minute: 0},
		{in: "2:30 Pm", hour: 14, minute: 30},
		{in: "0:30AM", wantErr: true},
		{in: "13:00AM", wantErr: true},
		{in: "10:60AM", wantErr: true},
		{in: "10:00", wantErr: true},
		{in: "10:00XM", wantErr: true},
		{in: "ten o'clock", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hour, minute, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTime)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, hour)
			assert.Equal(t, tt.minute, minute)
		})
	}
}

func TestParseDay(t *testing.T) {
	names := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	for i, name := range names {
		d, err := ParseDay(name)
		require.NoError(t, err)
		assert.Equal(t, time.Weekday(i), d)
	}

	for _, bad := range []string{"Funday", "monday", "MONDAY", ""} {
		_, err := ParseDay(bad)
		assert.ErrorIs(t, err, ErrInvalidDay, bad)
	}
}

func TestResolveOccurrence(t *testing.T) {
	// 2024-11-04 is a Monday.
	ref := time.Date(2024, 11, 4, 9, 30, 0, 0, time.UTC)
	require.Equal(t, time.Monday, ref.Weekday())

	t.Run("same day anchors to today", func(t *testing.T) {
		got, err := ResolveOccurrence(ref, TimingEntry{Day: "Monday", Start: "10:00AM"})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 11, 4, 10, 0, 0, 0, time.UTC), got)
	})

	t.Run("other days land 1-6 days ahead", func(t *testing.T) {
		days := map[string]int{
			"Tuesday": 1, "Wednesday": 2, "Thursday": 3,
			"Friday": 4, "Saturday": 5, "Sunday": 6,
		}
		for name, ahead := range days {
			got, err := ResolveOccurrence(ref, TimingEntry{Day: name, Start: "1:00PM"})
			require.NoError(t, err)
			want, _ := ParseDay(name)
			assert.Equal(t, want, got.Weekday(), name)
			assert.Equal(t, ref.AddDate(0, 0, ahead).Day(), got.Day(), name)
			assert.Equal(t, 13, got.Hour(), name)
		}
	})

	t.Run("week wrap", func(t *testing.T) {
		sat := time.Date(2024, 11, 9, 8, 0, 0, 0, time.UTC)
		require.Equal(t, time.Saturday, sat.Weekday())
		got, err := ResolveOccurrence(sat, TimingEntry{Day: "Sunday", Start: "9:00AM"})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 11, 10, 9, 0, 0, 0, time.UTC), got)
	})

	t.Run("invalid day", func(t *testing.T) {
		_, err := ResolveOccurrence(ref, TimingEntry{Day: "Funday", Start: "10:00AM"})
		assert.ErrorIs(t, err, ErrInvalidDay)
	})

	t.Run("invalid time", func(t *testing.T) {
		_, err := ResolveOccurrence(ref, TimingEntry{Day: "Monday", Start: "25:00PM"})
		assert.ErrorIs(t, err, ErrInvalidTime)
	})
}

func TestWithinWindow(t *testing.T) {
	entries := []TimingEntry{{Day: "Monday", Start: "10:00AM"}}
	day := func(hour, min, sec int) time.Time {
		return time.Date(2024, 11, 4, hour, min, sec, 0, time.UTC)
	}

	tests := []struct {
		name string
		ref  time.Time
		want bool
	}{
		{name: "at start", ref: day(10, 0, 0), want: true},
		{name: "window opens", ref: day(9, 55, 0), want: true},
		{name: "one second early", ref: day(9, 54, 59), want: false},
		{name: "window closes", ref: day(10, 5, 0), want: true},
		{name: "one second late", ref: day(10, 5, 1), want: false},
		{name: "an hour early", ref: day(9, 0, 0), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WithinWindow(tt.ref, entries, 5*time.Minute, 5*time.Minute)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("any entry admits", func(t *testing.T) {
		multi := []TimingEntry{
			{Day: "Wednesday", Start: "10:00AM"},
			{Day: "Monday", Start: "2:00PM"},
		}
		assert.True(t, WithinWindow(day(14, 2, 0), multi, 5*time.Minute, 5*time.Minute))
	})

	t.Run("malformed entry is skipped", func(t *testing.T) {
		mixed := []TimingEntry{
			{Day: "Funday", Start: "10:00AM"},
			{Day: "Monday", Start: "99:99XM"},
			{Day: "Monday", Start: "10:00AM"},
		}
		assert.True(t, WithinWindow(day(10, 1, 0), mixed, 5*time.Minute, 5*time.Minute))
	})

	t.Run("no timings", func(t *testing.T) {
		assert.False(t, WithinWindow(day(10, 0, 0), nil, 5*time.Minute, 5*time.Minute))
	})
}
