// Package streak computes streak transitions and levels. All comparisons are
// on calendar-date strings in the user's timezone, never on raw durations.
package streak

import (
	"github.com/daijir/scripture-habit/internal/timeutil"
)

// DaysPerLevel is the number of study days per level.
const DaysPerLevel = 7

// Outcome names the transition taken by a check-in.
type Outcome string

const (
	// Started: no usable prior check-in.
	Started Outcome = "started"
	// Continued: last check-in was yesterday.
	Continued Outcome = "continued"
	// Reset: last check-in was two or more days ago.
	Reset Outcome = "reset"
	// Unchanged: already checked in today.
	Unchanged Outcome = "unchanged"
	// Healed: already checked in today but the stored streak was 0.
	Healed Outcome = "healed"
)

// Result is the streak after a check-in.
type Result struct {
	Streak  int
	Outcome Outcome
}

// Evaluate applies one check-in on today to a streak last extended on
// lastDate. An empty or malformed lastDate counts as no prior check-in. A
// lastDate after today (the user moved west across timezones) is treated as
// today.
func Evaluate(streak int, lastDate, today string) Result {
	if streak < 0 {
		streak = 0
	}
	days, ok := timeutil.DaysBetween(lastDate, today)
	if !ok {
		return Result{Streak: 1, Outcome: Started}
	}
	switch {
	case days <= 0:
		if streak == 0 {
			return Result{Streak: 1, Outcome: Healed}
		}
		return Result{Streak: streak, Outcome: Unchanged}
	case days == 1:
		return Result{Streak: streak + 1, Outcome: Continued}
	default:
		return Result{Streak: 1, Outcome: Reset}
	}
}

// Announce reports whether the check-in produced a streak worth announcing
// to the user's groups.
func (r Result) Announce() bool {
	return r.Outcome == Started || r.Outcome == Continued || r.Outcome == Reset
}

// Current is the streak to display on today: a streak whose last check-in is
// older than yesterday is already broken.
func Current(streak int, lastDate, today string) int {
	days, ok := timeutil.DaysBetween(lastDate, today)
	if !ok || days > 1 || streak < 0 {
		return 0
	}
	return streak
}

// Level derives the level from cumulative study days.
func Level(totalStudyDays int) int {
	if totalStudyDays < 0 {
		totalStudyDays = 0
	}
	return totalStudyDays/DaysPerLevel + 1
}

// Progress returns how many days into the current level the user is and how
// many remain until the next.
func Progress(totalStudyDays int) (into, remaining int) {
	if totalStudyDays < 0 {
		totalStudyDays = 0
	}
	into = totalStudyDays % DaysPerLevel
	return into, DaysPerLevel - into
}

// CheckIn is the full effect of one qualifying action on a profile.
type CheckIn struct {
	Today          string
	Result         Result
	TotalStudyDays int
	PreviousLevel  int
	Level          int
}

// LeveledUp reports whether the check-in crossed a multiple of DaysPerLevel.
func (c CheckIn) LeveledUp() bool {
	return c.Level > c.PreviousLevel
}

// NewDay reports whether the check-in counted a new study day.
func (c CheckIn) NewDay() bool {
	return c.Result.Outcome != Unchanged && c.Result.Outcome != Healed
}

// Apply evaluates a check-in against stored profile values. Total study days
// grow by one only on the first check-in of a calendar day.
func Apply(streak, totalStudyDays int, lastDate, today string) CheckIn {
	if totalStudyDays < 0 {
		totalStudyDays = 0
	}
	c := CheckIn{
		Today:          today,
		Result:         Evaluate(streak, lastDate, today),
		TotalStudyDays: totalStudyDays,
		PreviousLevel:  Level(totalStudyDays),
	}
	if c.NewDay() {
		c.TotalStudyDays++
	}
	c.Level = Level(c.TotalStudyDays)
	return c
}
