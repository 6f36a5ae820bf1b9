// Package filter applies parsed search qualifiers to courses and sections.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"coursefind/internal/model"
	"coursefind/internal/query"
	"coursefind/internal/schedule"
)

// ErrUnknownQualifier means a section qualifier was routed to the course
// filter. It is a caller bug, not bad user input.
var ErrUnknownQualifier = errors.New("filter: qualifier does not apply to courses")

// levelBand is the width of a bare "level:N" match.
const levelBand = 1000

// Course reports whether course survives every course qualifier in pairs.
// Non-course keys return ErrUnknownQualifier; use query.Parsed.CoursePairs
// to route.
func Course(pairs []query.Pair, course model.Course) (bool, error) {
	for _, p := range pairs {
		switch p.Key {
		case query.KeySubject:
			if !strings.Contains(strings.ToLower(course.Subject), strings.ToLower(p.Value)) {
				return false, nil
			}
		case query.KeyLevel:
			if !levelMatches(p.Value, query.LeadingInt(course.Crse)) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: %s:%s", ErrUnknownQualifier, p.Key, p.Value)
		}
	}
	return true, nil
}

// levelMatches compares with NaN-safe semantics: any NaN side is a miss.
func levelMatches(raw string, level float64) bool {
	if strings.HasSuffix(raw, "+") {
		n, _ := query.ParseRange(raw)
		return n <= level
	}
	n, _ := query.ParseRange(raw)
	return n <= level && level < n+levelBand
}

// Result is the section filter's verdict.
type Result int

const (
	// Pass means no qualifier had an opinion about the section.
	Pass Result = iota
	// Matched means at least one qualifier positively matched and none removed.
	Matched
	// Removed means at least one qualifier excluded the section.
	Removed
)

func (r Result) String() string {
	switch r {
	case Matched:
		return "matched"
	case Removed:
		return "removed"
	default:
		return "pass"
	}
}

// Section evaluates section qualifiers against sec. course supplies the
// credit range; basket holds the schedules of the sections already chosen and
// is only consulted by is:compatible. Unknown keys and values are ignored.
func Section(pairs []query.Pair, sec *model.Section, course model.Course, basket []*schedule.Schedule) Result {
	matched, removed := false, false
	verdict := func(keep bool) {
		if keep {
			matched = true
		} else {
			removed = true
		}
	}

	for _, p := range pairs {
		switch p.Key {
		case query.KeyHas:
			switch p.Value {
			case "seats":
				verdict(sec.AvailableSeats > 0)
			case "time":
				verdict(sec.HasTime())
			}
		case query.KeyIs:
			switch p.Value {
			case "classroom":
				verdict(sec.Location.Type == model.LocationPhysical)
			case "online":
				verdict(sec.Location.Type == model.LocationOnline)
			case "remote":
				verdict(sec.Location.Type == model.LocationRemote)
			case "compatible":
				verdict(Compatible(sec, basket))
			}
		case query.KeyCredits:
			min, max := query.ParseRange(p.Value)
			verdict(course.MinCredits <= max && min <= course.MaxCredits)
		}
	}

	switch {
	case removed:
		return Removed
	case matched:
		return Matched
	default:
		return Pass
	}
}

// Compatible reports whether sec conflicts with none of the basket schedules.
// Sections without a meeting time are compatible with everything.
func Compatible(sec *model.Section, basket []*schedule.Schedule) bool {
	if !sec.HasTime() {
		return true
	}
	for _, b := range basket {
		if schedule.Conflict(sec.ParsedTime, b) {
			return false
		}
	}
	return true
}
