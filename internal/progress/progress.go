// Package progress derives goal attainment, streaks, and achievements from
// completed sessions. Like the stats package it is purely functional; nothing
// is persisted, so the rules can change without a migration.
package progress

import (
	"time"

	"github.com/Ademcan75/pomopro-dev/internal/domain"
)

// Goal captures the user's daily target.
type Goal struct {
	DailyFocusMinutes int
	DailySessions     int
}

// DefaultGoal is applied when a client supplies no target.
var DefaultGoal = Goal{DailyFocusMinutes: 100, DailySessions: 4}

// Achievement is an unlocked gamification milestone.
type Achievement struct {
	ID          string
	Name        string
	Description string
	UnlockedAt  time.Time
}

// Report is the derived progress view for one user.
type Report struct {
	Goal              Goal
	TodayFocusMinutes int
	TodaySessions     int
	GoalMet           bool
	CurrentStreak     int
	BestStreak        int
	Achievements      []Achievement
}

// Evaluate computes a progress report from the user's sessions as of now.
// A streak day is any day with at least one completed focus session.
func Evaluate(sessions []domain.Session, goal Goal, now time.Time) Report {
	if goal.DailyFocusMinutes <= 0 && goal.DailySessions <= 0 {
		goal = DefaultGoal
	}

	report := Report{Goal: goal}

	byDay := make(map[string]*dayTotals)
	var (
		completedFocus     int
		uninterruptedFocus int
		latestCompletion   time.Time
	)

	for _, s := range sessions {
		if s.State != domain.StateCompleted || s.Kind != domain.KindFocus {
			continue
		}
		completedFocus++
		if s.Interruptions == 0 {
			uninterruptedFocus++
		}
		if s.EndedAt != nil && s.EndedAt.After(latestCompletion) {
			latestCompletion = *s.EndedAt
		}

		key := dayKey(s.StartedAt.In(now.Location()))
		totals, ok := byDay[key]
		if !ok {
			totals = &dayTotals{}
			byDay[key] = totals
		}
		totals.sessions++
		totals.focusMinutes += s.DurationSec / 60
	}

	if today, ok := byDay[dayKey(now)]; ok {
		report.TodayFocusMinutes = today.focusMinutes
		report.TodaySessions = today.sessions
	}
	report.GoalMet = report.TodayFocusMinutes >= goal.DailyFocusMinutes &&
		report.TodaySessions >= goal.DailySessions

	report.CurrentStreak, report.BestStreak = streaks(byDay, now)
	report.Achievements = achievements(byDay, completedFocus, uninterruptedFocus, report.BestStreak, latestCompletion)
	return report
}

type dayTotals struct {
	sessions     int
	focusMinutes int
}

// streaks walks days backwards from now for the current streak and scans all
// recorded days for the best one. Today not yet having a session does not
// break the current streak.
func streaks(byDay map[string]*dayTotals, now time.Time) (current, best int) {
	day := now
	if _, ok := byDay[dayKey(day)]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	for {
		if _, ok := byDay[dayKey(day)]; !ok {
			break
		}
		current++
		day = day.AddDate(0, 0, -1)
	}

	for key := range byDay {
		streak := 1
		day, err := time.ParseInLocation("2006-01-02", key, now.Location())
		if err != nil {
			continue
		}
		// only count from streak starts to avoid rescanning interiors
		if _, ok := byDay[dayKey(day.AddDate(0, 0, -1))]; ok {
			continue
		}
		for {
			day = day.AddDate(0, 0, 1)
			if _, ok := byDay[dayKey(day)]; !ok {
				break
			}
			streak++
		}
		if streak > best {
			best = streak
		}
	}
	if current > best {
		best = current
	}
	return current, best
}

// Unlock rules are deliberately simple threshold checks; the unlock time is
// the latest completion that could have crossed the threshold.
func achievements(byDay map[string]*dayTotals, completedFocus, uninterruptedFocus, bestStreak int, latest time.Time) []Achievement {
	var out []Achievement

	add := func(id, name, description string) {
		out = append(out, Achievement{ID: id, Name: name, Description: description, UnlockedAt: latest})
	}

	if completedFocus >= 1 {
		add("first_focus", "First Focus", "Complete your first focus session.")
	}
	if completedFocus >= 10 {
		add("ten_sessions", "Getting Serious", "Complete ten focus sessions.")
	}
	if uninterruptedFocus >= 5 {
		add("deep_work", "Deep Work", "Complete five focus sessions without a single interruption.")
	}
	if bestStreak >= 7 {
		add("week_streak", "Full Week", "Complete focus sessions on seven consecutive days.")
	}
	for _, totals := range byDay {
		if totals.focusMinutes >= 200 {
			add("marathon_day", "Marathon Day", "Log 200 focus minutes in a single day.")
			break
		}
	}

	return out
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
