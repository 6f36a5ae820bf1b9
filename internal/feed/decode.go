package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	appLog "coursefind/internal/log"
	"coursefind/internal/model"
	"coursefind/internal/schedule"
)

// ErrEmptyFeed is returned for a feed without courses.
var ErrEmptyFeed = errors.New("feed: no courses")

// Document is the JSON catalog a feed serves.
type Document struct {
	Term        model.Term         `json:"term"`
	Courses     []model.Course     `json:"courses"`
	Sections    []Section          `json:"sections"`
	Instructors []model.Instructor `json:"instructors"`
}

// Section is a feed section. Feeds either send the iCalendar payload in
// "time" or structured meetings that are encoded into it.
type Section struct {
	model.Section
	Meetings []Meeting `json:"meetings,omitempty"`
}

// Meeting is a weekly meeting pattern, e.g. MWF 10:00-10:50 from
// 2024-09-02 to 2024-12-13.
type Meeting struct {
	Days      string `json:"days"`
	Start     string `json:"start"`
	End       string `json:"end"`
	FirstDate string `json:"first_date"`
	LastDate  string `json:"last_date,omitempty"`
}

var meetingDays = map[rune]time.Weekday{
	'M': time.Monday,
	'T': time.Tuesday,
	'W': time.Wednesday,
	'R': time.Thursday,
	'F': time.Friday,
	'S': time.Saturday,
	'U': time.Sunday,
}

// Rule converts the meeting into a weekly rule with wall-clock times in loc.
func (m Meeting) Rule(loc *time.Location) (schedule.Rule, error) {
	days := make([]time.Weekday, 0, len(m.Days))
	for _, r := range strings.ToUpper(m.Days) {
		d, ok := meetingDays[r]
		if !ok {
			return schedule.Rule{}, fmt.Errorf("unknown day %q in %q", r, m.Days)
		}
		days = append(days, d)
	}
	first, err := time.ParseInLocation("2006-01-02", m.FirstDate, loc)
	if err != nil {
		return schedule.Rule{}, fmt.Errorf("first_date: %w", err)
	}
	start, err := clockOn(first, m.Start)
	if err != nil {
		return schedule.Rule{}, fmt.Errorf("start: %w", err)
	}
	end, err := clockOn(first, m.End)
	if err != nil {
		return schedule.Rule{}, fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return schedule.Rule{}, fmt.Errorf("meeting ends at %s before it starts at %s", m.End, m.Start)
	}
	var until time.Time
	if m.LastDate != "" {
		last, err := time.ParseInLocation("2006-01-02", m.LastDate, loc)
		if err != nil {
			return schedule.Rule{}, fmt.Errorf("last_date: %w", err)
		}
		until = last.Add(24*time.Hour - time.Second)
	}
	return schedule.NewWeeklyRule(start, end, until, days...)
}

func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// Decode parses a feed body. Structured meetings are encoded into the
// section's time payload; a section whose meetings are invalid keeps no time.
func Decode(body []byte, loc *time.Location) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	sem, err := model.ParseSemester(string(doc.Term.Semester))
	if err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	doc.Term.Semester = sem
	if len(doc.Courses) == 0 {
		return nil, ErrEmptyFeed
	}
	for i := range doc.Courses {
		doc.Courses[i].Term = doc.Term
	}
	for i := range doc.Sections {
		sec := &doc.Sections[i]
		if sec.Time != "" || len(sec.Meetings) == 0 {
			continue
		}
		rules := make([]schedule.Rule, 0, len(sec.Meetings))
		for _, m := range sec.Meetings {
			r, err := m.Rule(loc)
			if err != nil {
				appLog.Warn("feed meeting invalid; section left unscheduled", "section", sec.ID, "err", err)
				rules = nil
				break
			}
			rules = append(rules, r)
		}
		sec.Time = schedule.New(rules...).Encode()
	}
	return &doc, nil
}

// ModelSections strips feed-only fields.
func (d *Document) ModelSections() []model.Section {
	out := make([]model.Section, len(d.Sections))
	for i, s := range d.Sections {
		out[i] = s.Section
	}
	return out
}
