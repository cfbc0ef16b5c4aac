package schedule_test

import (
	"testing"
	"time"

	"eduface-backend/internal/schedule"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClock(t *testing.T, s string) schedule.Minutes {
	t.Helper()
	m, err := schedule.ParseClock(s)
	require.NoError(t, err)
	return m
}

func sched(t *testing.T, start, end string, days ...time.Weekday) schedule.Schedule {
	t.Helper()
	return schedule.Schedule{
		Days:  schedule.NewDaySet(days...),
		Start: mustClock(t, start),
		End:   mustClock(t, end),
	}
}

func TestParseClock(t *testing.T) {
	m, err := schedule.ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, schedule.Minutes(570), m)
	assert.Equal(t, "09:30", m.String())

	_, err = schedule.ParseClock("25:00")
	assert.Error(t, err)
	_, err = schedule.ParseClock("9am")
	assert.Error(t, err)
}

func TestParseDays(t *testing.T) {
	s, err := schedule.ParseDays([]string{"Monday", "wednesday", " Friday "})
	require.NoError(t, err)
	assert.True(t, s.Has(time.Monday))
	assert.True(t, s.Has(time.Wednesday))
	assert.True(t, s.Has(time.Friday))
	assert.False(t, s.Has(time.Tuesday))

	_, err = schedule.ParseDays([]string{"Moonday"})
	assert.Error(t, err)
}

func TestConflictsBackToBack(t *testing.T) {
	a := sched(t, "09:00", "10:00", time.Monday)
	b := sched(t, "10:00", "11:00", time.Monday)

	assert.False(t, schedule.Conflicts(a, b))
	assert.False(t, schedule.Conflicts(b, a))
}

func TestConflictsOverlapSameDay(t *testing.T) {
	a := sched(t, "09:00", "10:30", time.Monday)
	b := sched(t, "10:00", "11:00", time.Monday)

	assert.True(t, schedule.Conflicts(a, b))
	assert.True(t, schedule.Conflicts(b, a))
}

func TestConflictsDisjointDays(t *testing.T) {
	a := sched(t, "09:00", "10:00", time.Monday)
	b := sched(t, "09:00", "10:00", time.Tuesday)

	assert.False(t, schedule.Conflicts(a, b))
}

func TestConflictsContainment(t *testing.T) {
	outer := sched(t, "08:00", "12:00", time.Monday, time.Wednesday)
	inner := sched(t, "09:00", "10:00", time.Wednesday)

	assert.True(t, schedule.Conflicts(outer, inner))
	assert.True(t, schedule.Conflicts(inner, outer))
}

func TestConflictsOverlapRule(t *testing.T) {
	// For schedules sharing a day, conflict iff max(start) < min(end).
	base := sched(t, "09:00", "11:00", time.Thursday)
	cases := []struct {
		start, end string
		want       bool
	}{
		{"07:00", "09:00", false},
		{"07:00", "09:01", true},
		{"10:59", "12:00", true},
		{"11:00", "12:00", false},
		{"09:00", "11:00", true},
	}
	for _, tc := range cases {
		other := sched(t, tc.start, tc.end, time.Thursday)
		got := schedule.Conflicts(base, other)
		assert.Equal(t, tc.want, got, "window %s-%s", tc.start, tc.end)
		assert.Equal(t, got, max(base.Start, other.Start) < min(base.End, other.End))
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, sched(t, "09:00", "10:00", time.Monday).Validate())

	assert.Error(t, sched(t, "10:00", "09:00", time.Monday).Validate())
	assert.Error(t, sched(t, "10:00", "10:00", time.Monday).Validate())
	assert.Error(t, schedule.Schedule{Start: 540, End: 600}.Validate())
}

func TestFindConflict(t *testing.T) {
	existing := []schedule.Assignment{
		{Id: uuid.New(), Schedule: sched(t, "08:00", "09:00", time.Monday)},
		{Id: uuid.New(), Schedule: sched(t, "10:00", "12:00", time.Wednesday)},
	}

	if c := schedule.FindConflict(sched(t, "09:00", "10:00", time.Monday), existing); c != nil {
		t.Fatalf("expected no conflict, got %v", c)
	}

	c := schedule.FindConflict(sched(t, "11:00", "13:00", time.Wednesday, time.Friday), existing)
	require.NotNil(t, c)
	assert.Equal(t, existing[1].Id, c.Assignment.Id)
	assert.Equal(t, time.Wednesday, c.Day)
	assert.Contains(t, c.Error(), "Wednesday")
	assert.Contains(t, c.Error(), "10:00")
}
