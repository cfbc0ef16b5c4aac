package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DaySet is a bitmask of weekdays, bit N corresponding to time.Weekday(N).
type DaySet uint8

func NewDaySet(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDays converts weekday names (case-insensitive, full names) into a DaySet.
func ParseDays(names []string) (DaySet, error) {
	var s DaySet
	for _, name := range names {
		d, ok := dayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", name)
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

func (s DaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

func (s DaySet) Intersect(o DaySet) DaySet {
	return s & o
}

func (s DaySet) Empty() bool {
	return s == 0
}

func (s DaySet) Days() []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (s DaySet) Names() []string {
	var names []string
	for _, d := range s.Days() {
		names = append(names, d.String())
	}
	return names
}

// Minutes is a time of day expressed as minutes since midnight.
type Minutes int

// ParseClock parses a "HH:MM" wall clock string.
func ParseClock(s string) (Minutes, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return Minutes(t.Hour()*60 + t.Minute()), nil
}

func (m Minutes) String() string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Schedule is a weekly recurring time window on one or more days.
type Schedule struct {
	Days  DaySet
	Start Minutes
	End   Minutes
}

// Validate checks the invariants callers must establish before running the
// conflict check: a non-empty day set and Start strictly before End.
func (s Schedule) Validate() error {
	if s.Days.Empty() {
		return fmt.Errorf("schedule must include at least one day")
	}
	if s.Start >= s.End {
		return fmt.Errorf("schedule start %s must be before end %s", s.Start, s.End)
	}
	return nil
}

// Overlaps reports whether the time windows of a and b overlap, ignoring
// days. Windows are half-open [start, end), so back-to-back windows where
// one ends exactly when the other starts do not overlap.
func Overlaps(a, b Schedule) bool {
	return max(a.Start, b.Start) < min(a.End, b.End)
}

// Conflicts reports whether a and b collide: they share at least one day and
// their time windows overlap. It is pure and performs no validation.
func Conflicts(a, b Schedule) bool {
	return !a.Days.Intersect(b.Days).Empty() && Overlaps(a, b)
}

// Assignment is the subset of a class assignment the conflict check needs.
type Assignment struct {
	Id       uuid.UUID
	Schedule Schedule
}

// Conflict describes a collision between a proposed schedule and an existing
// assignment, including one shared day for the error message shown to users.
type Conflict struct {
	Assignment Assignment
	Day        time.Weekday
}

func (c Conflict) Error() string {
	return fmt.Sprintf("conflicts with assignment %s on %s %s-%s",
		c.Assignment.Id, c.Day, c.Assignment.Schedule.Start, c.Assignment.Schedule.End)
}

// FindConflict returns the first existing assignment that collides with the
// proposed schedule, or nil if the proposed schedule is free. The proposed
// schedule should be validated before calling.
func FindConflict(proposed Schedule, existing []Assignment) *Conflict {
	for _, a := range existing {
		if !Conflicts(proposed, a.Schedule) {
			continue
		}
		shared := proposed.Days.Intersect(a.Schedule.Days)
		return &Conflict{Assignment: a, Day: shared.Days()[0]}
	}
	return nil
}
