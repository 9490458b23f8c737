// Package stats aggregates finished sessions into daily and weekly rollups.
//
// Every function here is pure: callers pass the session set in and get a
// value back, which keeps the aggregation logic testable without a store.
// Aggregates are recomputed on demand rather than persisted.
package stats

import (
	"math"
	"time"

	"github.com/Ademcan75/pomopro-dev/internal/domain"
)

// Focus score component weights. The score blends how often focus sessions
// finish, how interrupted they were, whether breaks were actually taken, and
// how consistent session lengths are, scaled to 0-100.
const (
	weightCompletion    = 0.40
	weightInterruptions = 0.25
	weightBreaks        = 0.20
	weightConsistency   = 0.15
)

// DailyStats is a derived, read-only rollup for one calendar day.
type DailyStats struct {
	Date            time.Time
	FocusMinutes    int
	BreakMinutes    int
	CompletedFocus  int
	CompletedBreaks int
	Abandoned       int
	Interruptions   int
	FocusScore      float64
}

// RangeStats is a derived, read-only rollup over an arbitrary [From, To)
// window, for callers that want totals without per-day buckets.
type RangeStats struct {
	From            time.Time
	To              time.Time
	FocusMinutes    int
	BreakMinutes    int
	CompletedFocus  int
	CompletedBreaks int
	Abandoned       int
	Interruptions   int
	FocusScore      float64
}

// WeeklyStats is a derived, read-only rollup for seven consecutive days.
type WeeklyStats struct {
	WeekStart      time.Time
	Days           []DailyStats
	FocusMinutes   int
	BreakMinutes   int
	CompletedFocus int
	Abandoned      int
	Interruptions  int
	FocusScore     float64
}

// Daily computes the rollup for the calendar day containing day, in day's
// location. Only terminal sessions contribute; an empty input yields a
// zero-valued rollup.
func Daily(sessions []domain.Session, day time.Time) DailyStats {
	start := midnight(day)
	end := start.AddDate(0, 0, 1)
	bucket := filterRange(sessions, start, end)

	t := tally(bucket)
	return DailyStats{
		Date:            start,
		FocusMinutes:    t.focusMinutes,
		BreakMinutes:    t.breakMinutes,
		CompletedFocus:  t.completedFocus,
		CompletedBreaks: t.completedBreaks,
		Abandoned:       t.abandoned,
		Interruptions:   t.interruptions,
		FocusScore:      FocusScore(bucket),
	}
}

// Range computes one rollup for every session started within [from, to).
// Only terminal sessions contribute.
func Range(sessions []domain.Session, from, to time.Time) RangeStats {
	bucket := filterRange(sessions, from, to)
	t := tally(bucket)
	return RangeStats{
		From:            from,
		To:              to,
		FocusMinutes:    t.focusMinutes,
		BreakMinutes:    t.breakMinutes,
		CompletedFocus:  t.completedFocus,
		CompletedBreaks: t.completedBreaks,
		Abandoned:       t.abandoned,
		Interruptions:   t.interruptions,
		FocusScore:      FocusScore(bucket),
	}
}

// Weekly computes rollups for the seven days starting at weekStart.
func Weekly(sessions []domain.Session, weekStart time.Time) WeeklyStats {
	start := midnight(weekStart)
	out := WeeklyStats{WeekStart: start, Days: make([]DailyStats, 0, 7)}

	for i := 0; i < 7; i++ {
		daily := Daily(sessions, start.AddDate(0, 0, i))
		out.Days = append(out.Days, daily)
		out.FocusMinutes += daily.FocusMinutes
		out.BreakMinutes += daily.BreakMinutes
		out.CompletedFocus += daily.CompletedFocus
		out.Abandoned += daily.Abandoned
		out.Interruptions += daily.Interruptions
	}

	out.FocusScore = FocusScore(filterRange(sessions, start, start.AddDate(0, 0, 7)))
	return out
}

// FocusScore rates session quality from 0 to 100. Sessions that never
// completed a focus countdown score zero.
func FocusScore(sessions []domain.Session) float64 {
	var (
		totalFocus     int
		completedFocus int
		interruptions  int
		breaksTaken    int
		durations      []float64
	)

	for _, s := range sessions {
		if !s.Terminal() {
			continue
		}
		if s.Kind == domain.KindFocus {
			totalFocus++
			if s.State == domain.StateCompleted {
				completedFocus++
				interruptions += s.Interruptions
				durations = append(durations, float64(s.DurationSec))
			}
		} else if s.Kind.IsBreak() && s.State == domain.StateCompleted {
			breaksTaken++
		}
	}

	if completedFocus == 0 {
		return 0
	}

	completionRate := float64(completedFocus) / float64(totalFocus)

	avgInterruptions := float64(interruptions) / float64(completedFocus)
	interruptionFactor := 1 / (1 + avgInterruptions)

	breakCompliance := float64(breaksTaken) / float64(completedFocus)
	if breakCompliance > 1 {
		breakCompliance = 1
	}

	consistency := lengthConsistency(durations)

	score := 100 * (weightCompletion*completionRate +
		weightInterruptions*interruptionFactor +
		weightBreaks*breakCompliance +
		weightConsistency*consistency)
	return math.Round(score*10) / 10
}

// lengthConsistency maps the coefficient of variation of completed focus
// durations onto [0, 1]: identical lengths give 1, spread >= mean gives 0.
func lengthConsistency(durations []float64) float64 {
	if len(durations) <= 1 {
		return 1
	}

	var sum float64
	for _, d := range durations {
		sum += d
	}
	mean := sum / float64(len(durations))
	if mean <= 0 {
		return 0
	}

	var variance float64
	for _, d := range durations {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(durations))

	cv := math.Sqrt(variance) / mean
	if cv >= 1 {
		return 0
	}
	return 1 - cv
}

type counts struct {
	focusMinutes    int
	breakMinutes    int
	completedFocus  int
	completedBreaks int
	abandoned       int
	interruptions   int
}

// tally accumulates the terminal sessions of a bucket. Sessions still
// running or paused are invisible to rollups, interruptions included.
func tally(bucket []domain.Session) counts {
	var out counts
	for _, s := range bucket {
		if !s.Terminal() {
			continue
		}
		switch {
		case s.State == domain.StateCompleted && s.Kind == domain.KindFocus:
			out.completedFocus++
			out.focusMinutes += s.DurationSec / 60
		case s.State == domain.StateCompleted && s.Kind.IsBreak():
			out.completedBreaks++
			out.breakMinutes += s.DurationSec / 60
		case s.State == domain.StateAbandoned:
			out.abandoned++
		}
		out.interruptions += s.Interruptions
	}
	return out
}

func filterRange(sessions []domain.Session, from, to time.Time) []domain.Session {
	out := make([]domain.Session, 0, len(sessions))
	for _, s := range sessions {
		started := s.StartedAt.In(from.Location())
		if !started.Before(from) && started.Before(to) {
			out = append(out, s)
		}
	}
	return out
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
