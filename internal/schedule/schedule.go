// Package schedule models recurring weekly meeting times on top of rrule-go
// and decides whether two of them collide.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrNoSchedule is returned when a payload carries no usable meeting rule.
var ErrNoSchedule = errors.New("schedule: no meeting rules")

// Rule is one recurrence rule with a fixed duration per occurrence.
// It is immutable after construction.
type Rule struct {
	raw      string
	set      *rrule.Set
	start    time.Time
	duration time.Duration
	exdates  []time.Time
	days     []time.Weekday

	first     time.Time
	last      time.Time
	fires     bool
	openEnded bool
}

// NewRule builds a rule from an RRULE value (e.g. "FREQ=WEEKLY;BYDAY=MO,WE"),
// anchored at start and lasting duration per occurrence.
func NewRule(rawRRule string, start time.Time, duration time.Duration, exdates ...time.Time) (Rule, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(rawRRule), "RRULE:")
	if raw == "" {
		return Rule{}, errors.New("schedule: empty RRULE")
	}
	if start.IsZero() {
		return Rule{}, errors.New("schedule: missing DTSTART")
	}
	if duration < 0 {
		return Rule{}, fmt.Errorf("schedule: negative duration %s", duration)
	}

	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return Rule{}, fmt.Errorf("schedule: parse RRULE %q: %w", raw, err)
	}
	opt.Dtstart = start

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return Rule{}, fmt.Errorf("schedule: build RRULE %q: %w", raw, err)
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range exdates {
		set.ExDate(ex.In(start.Location()))
	}

	rule := Rule{
		raw:      raw,
		set:      set,
		start:    start,
		duration: duration,
		exdates:  append([]time.Time(nil), exdates...),
		days:     weekdaysOf(*opt, start),
	}

	rule.first = set.After(start, true)
	rule.fires = !rule.first.IsZero()
	switch {
	case !rule.fires:
	case !opt.Until.IsZero():
		rule.last = set.Before(opt.Until, true)
	case opt.Count > 0:
		all := set.All()
		rule.last = all[len(all)-1]
	default:
		rule.openEnded = true
	}

	return rule, nil
}

// NewWeeklyRule is a convenience constructor for the common case: a weekly
// meeting on the given days from start until until (inclusive). The first
// occurrence's wall-clock start/end come from start and end.
func NewWeeklyRule(start, end, until time.Time, days ...time.Weekday) (Rule, error) {
	if len(days) == 0 {
		return Rule{}, errors.New("schedule: weekly rule needs at least one day")
	}
	codes := make([]string, 0, len(days))
	for _, d := range sortedDays(days) {
		codes = append(codes, rruleDayCodes[d])
	}
	raw := "FREQ=WEEKLY;BYDAY=" + strings.Join(codes, ",")
	if !until.IsZero() {
		raw += ";UNTIL=" + until.UTC().Format("20060102T150405Z")
	}
	return NewRule(raw, start, end.Sub(start))
}

// OneOff builds a rule that fires exactly once. It has no weekly day set.
func OneOff(start, end time.Time) (Rule, error) {
	return NewRule("FREQ=DAILY;COUNT=1", start, end.Sub(start))
}

// RRule returns the raw RRULE value the rule was built from.
func (r Rule) RRule() string { return r.raw }

// Start is the rule's DTSTART.
func (r Rule) Start() time.Time { return r.start }

// Duration is the length of every occurrence.
func (r Rule) Duration() time.Duration { return r.duration }

// ExDates returns the excluded occurrence starts.
func (r Rule) ExDates() []time.Time { return append([]time.Time(nil), r.exdates...) }

// Days is the weekly day-of-week set, empty for rules that are not
// anchored to weekdays.
func (r Rule) Days() []time.Weekday { return append([]time.Weekday(nil), r.days...) }

// Fires reports whether the rule has at least one occurrence.
func (r Rule) Fires() bool { return r.fires }

// FirstStart is the start instant of the first occurrence.
func (r Rule) FirstStart() time.Time { return r.first }

// FirstEnd is the end instant of the first occurrence.
func (r Rule) FirstEnd() time.Time {
	if !r.fires {
		return time.Time{}
	}
	return r.first.Add(r.duration)
}

// FirstDate is midnight of the first occurrence's day in the rule's zone.
func (r Rule) FirstDate() time.Time { return dateOf(r.first) }

// LastDate is midnight of the last occurrence's day. ok is false when the
// rule repeats forever.
func (r Rule) LastDate() (time.Time, bool) {
	if r.openEnded || !r.fires {
		return time.Time{}, false
	}
	return dateOf(r.last), true
}

// OpenEnded reports whether the rule has neither UNTIL nor COUNT.
func (r Rule) OpenEnded() bool { return r.openEnded }

// Between returns occurrence starts in [from, to], EXDATEs removed.
func (r Rule) Between(from, to time.Time) []time.Time {
	if r.set == nil {
		return nil
	}
	return r.set.Between(from, to, true)
}

// Schedule is a set of rules describing when a section meets.
type Schedule struct {
	rules []Rule
}

// New wraps rules into a Schedule.
func New(rules ...Rule) *Schedule {
	return &Schedule{rules: append([]Rule(nil), rules...)}
}

// Rules returns a copy of the rule list.
func (s *Schedule) Rules() []Rule {
	if s == nil {
		return nil
	}
	return append([]Rule(nil), s.rules...)
}

// Empty reports whether the schedule has no rules at all. A nil schedule is empty.
func (s *Schedule) Empty() bool {
	return s == nil || len(s.rules) == 0
}

// FirstStart is the earliest first-occurrence start across all rules.
func (s *Schedule) FirstStart() (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	var first time.Time
	for _, r := range s.rules {
		if !r.fires {
			continue
		}
		if first.IsZero() || r.first.Before(first) {
			first = r.first
		}
	}
	return first, !first.IsZero()
}

// Occurrence is one concrete meeting.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Between expands every rule in [from, to], sorted by start.
func (s *Schedule) Between(from, to time.Time) []Occurrence {
	if s == nil {
		return nil
	}
	out := make([]Occurrence, 0)
	for _, r := range s.rules {
		for _, st := range r.Between(from, to) {
			out = append(out, Occurrence{Start: st, End: st.Add(r.duration)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

var rruleDayCodes = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// weekdaysOf derives the weekly day set. rrule-go numbers Monday as 0.
func weekdaysOf(opt rrule.ROption, start time.Time) []time.Weekday {
	if len(opt.Byweekday) > 0 {
		days := make([]time.Weekday, 0, len(opt.Byweekday))
		for _, wd := range opt.Byweekday {
			days = append(days, time.Weekday((wd.Day()+1)%7))
		}
		return sortedDays(days)
	}
	if opt.Freq == rrule.WEEKLY {
		return []time.Weekday{start.Weekday()}
	}
	return nil
}

// sortedDays dedups and orders days Monday-first.
func sortedDays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return mondayFirst(out[i]) < mondayFirst(out[j]) })
	return out
}

func mondayFirst(d time.Weekday) int { return (int(d) + 6) % 7 }

func dateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
