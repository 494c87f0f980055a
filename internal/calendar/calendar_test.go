package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrequency(t *testing.T) {
	cases := map[string]time.Duration{
		"day":   24 * time.Hour,
		"1d":    24 * time.Hour,
		"D":     24 * time.Hour,
		"1min":  time.Minute,
		"5m":    5 * time.Minute,
		"15min": 15 * time.Minute,
		"1h":    time.Hour,
		"4H":    4 * time.Hour,
		"1w":    7 * 24 * time.Hour,
		"30s":   30 * time.Second,
		"2days": 48 * time.Hour,
	}
	for in, want := range cases {
		f, err := ParseFrequency(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, f.Step, in)
	}
}

func TestParseFrequencyInvalid(t *testing.T) {
	for _, in := range []string{"", "fortnight", "0d", "1M", "1ms", "h1", "-1h", "5124096h", "213503d", "2562048h"} {
		_, err := ParseFrequency(in)
		assert.ErrorIs(t, err, ErrInvalidFrequency, in)
	}
}

func TestGenerateKeepsWeekends(t *testing.T) {
	// 2024-01-05 为周五，连续日历必须包含周六与周日。
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	cal, err := Generate(start, end, "day")
	require.NoError(t, err)
	require.Len(t, cal, 4)
	assert.Equal(t, time.Saturday, cal[1].Weekday())
	assert.Equal(t, time.Sunday, cal[2].Weekday())
	assert.Equal(t, start, cal[0])
	assert.Equal(t, end, cal[3])
}

func TestGenerateProperties(t *testing.T) {
	start := time.Date(2024, 2, 28, 22, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 3, 30, 0, 0, time.UTC)

	for _, freq := range []string{"1min", "15m", "1h", "4h", "day"} {
		cal, err := Generate(start, end, freq)
		require.NoError(t, err, freq)
		require.NotEmpty(t, cal, freq)

		assert.Equal(t, start, cal[0], freq)
		for i := 1; i < len(cal); i++ {
			assert.True(t, cal[i].After(cal[i-1]), "%s: not strictly increasing at %d", freq, i)
		}
		for _, ts := range cal {
			assert.False(t, ts.Before(start) || ts.After(end), "%s: %s outside range", freq, ts)
		}

		again, err := Generate(start, end, freq)
		require.NoError(t, err)
		assert.Equal(t, cal, again, freq)
	}
}

func TestGenerateUnalignedEnd(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(150 * time.Minute)

	cal, err := Generate(start, end, "1h")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{start, start.Add(time.Hour), start.Add(2 * time.Hour)}, cal)
}

func TestGenerateSpanBeyondDurationRange(t *testing.T) {
	start := time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cal, err := Generate(start, end, "day")
	require.NoError(t, err)
	require.Len(t, cal, 118339)
	assert.Equal(t, start, cal[0])
	assert.Equal(t, end, cal[len(cal)-1])
}

func TestGenerateRejectsTooManySteps(t *testing.T) {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := Generate(start, start.AddDate(1, 0, 0), "1s")
	assert.ErrorIs(t, err, ErrTooManySteps)

	_, err = Generate(time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC), start, "1min")
	assert.ErrorIs(t, err, ErrTooManySteps)

	f, err := ParseFrequency("1s")
	require.NoError(t, err)
	n, err := f.count(start, start.Add(time.Duration(MaxSteps-1)*time.Second))
	require.NoError(t, err)
	assert.Equal(t, MaxSteps, n)
	_, err = f.count(start, start.Add(time.Duration(MaxSteps)*time.Second))
	assert.ErrorIs(t, err, ErrTooManySteps)
}

func TestGenerateEmptyWhenStartAfterEnd(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cal, err := Generate(start, start.Add(-time.Hour), "1h")
	require.NoError(t, err)
	assert.Empty(t, cal)
}

func TestGenerateInvalidFrequency(t *testing.T) {
	now := time.Now()
	_, err := Generate(now, now.Add(time.Hour), "bogus")
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestProviderLoad(t *testing.T) {
	today := time.Date(2000, 1, 10, 12, 0, 0, 0, time.UTC)
	p := NewProvider(WithClock(func() time.Time { return today }))

	cal, err := p.Load("day", false)
	require.NoError(t, err)
	require.Len(t, cal, 10)
	assert.Equal(t, DefaultStart, cal[0])
	assert.Equal(t, time.Date(2000, 1, 10, 0, 0, 0, 0, time.UTC), cal[9])

	future, err := p.Load("1d", true)
	require.NoError(t, err)
	assert.Len(t, future, 10+365)

	_, err = NewProvider(WithClock(func() time.Time { return today.AddDate(1, 0, 0) })).Load("1s", false)
	assert.ErrorIs(t, err, ErrTooManySteps)
}

func TestProviderWithStart(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewProvider(WithStart(start), WithClock(func() time.Time { return start.Add(36 * time.Hour) }))

	cal, err := p.Load("12h", false)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{start, start.Add(12 * time.Hour), start.Add(24 * time.Hour), start.Add(36 * time.Hour)}, cal)
}

func TestMemoryCalendar(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	m := FromTimestamps([]time.Time{d(3), d(1), d(2), d(1), d(3)})

	cal, err := m.Load("day")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d(1), d(2), d(3)}, cal)
	for i := 1; i < len(cal); i++ {
		assert.Equal(t, 24*time.Hour, cal[i].Sub(cal[i-1]))
	}

	_, err = m.Load("1h")
	assert.ErrorIs(t, err, ErrInvalidFrequency)

	assert.Equal(t, []time.Time{d(2), d(3)}, m.Between(d(2), time.Time{}))
}

func TestStepsPerYear(t *testing.T) {
	f, err := ParseFrequency("1h")
	require.NoError(t, err)
	assert.Equal(t, 24.0*365, f.StepsPerYear())
}
