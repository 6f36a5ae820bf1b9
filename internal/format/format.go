// Package format turns credit ranges and meeting rules into display strings.
package format

import (
	"strconv"
	"strings"
	"time"

	"coursefind/internal/query"
	"coursefind/internal/schedule"
)

// UnboundedCredits is the sentinel max used for open ranges such as "3+".
const UnboundedCredits = query.UnboundedMax

// Credits renders a credit range: "1 credit", "3 credits", "1-3 credits",
// "3+ credits".
func Credits(min, max float64) string {
	lo := number(min)
	switch {
	case max >= UnboundedCredits:
		return lo + "+ credits"
	case max <= min:
		if min == 1 {
			return "1 credit"
		}
		return lo + " credits"
	default:
		return lo + "-" + number(max) + " credits"
	}
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var dayLetters = map[time.Weekday]string{
	time.Monday:    "M",
	time.Tuesday:   "T",
	time.Wednesday: "W",
	time.Thursday:  "R",
	time.Friday:    "F",
	time.Saturday:  "S",
	time.Sunday:    "U",
}

// Days renders a Monday-first day set as registrar letters, e.g. "MWF", "TR".
func Days(days []time.Weekday) string {
	var b strings.Builder
	for _, d := range days {
		b.WriteString(dayLetters[d])
	}
	return b.String()
}

// Clock renders a wall-clock time as "10:00am".
func Clock(t time.Time) string {
	return t.Format("3:04pm")
}

// Rule renders one rule as "MWF 10:00am-10:50am". Rules without a weekly day
// set render their date instead, e.g. "Dec 16 10:30am-12:00pm".
func Rule(r schedule.Rule) string {
	if !r.Fires() {
		return "TBA"
	}
	prefix := Days(r.Days())
	if prefix == "" {
		prefix = r.FirstStart().Format("Jan 2")
	}
	return prefix + " " + Clock(r.FirstStart()) + "-" + Clock(r.FirstEnd())
}

// Schedule joins every rule with "; ", or "TBA" for sections without time.
func Schedule(s *schedule.Schedule) string {
	if s.Empty() {
		return "TBA"
	}
	parts := make([]string, 0, len(s.Rules()))
	for _, r := range s.Rules() {
		parts = append(parts, Rule(r))
	}
	return strings.Join(parts, "; ")
}

// DateRange renders "Sep 2 - Dec 13". An open end renders as "Sep 2 -".
func DateRange(first, last time.Time) string {
	if first.IsZero() {
		return ""
	}
	if last.IsZero() {
		return first.Format("Jan 2") + " -"
	}
	if first.Year() != last.Year() {
		return first.Format("Jan 2, 2006") + " - " + last.Format("Jan 2, 2006")
	}
	return first.Format("Jan 2") + " - " + last.Format("Jan 2")
}

// RuleWindow renders the validity window of a rule.
func RuleWindow(r schedule.Rule) string {
	last, _ := r.LastDate()
	return DateRange(r.FirstDate(), last)
}
