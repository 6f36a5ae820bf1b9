package schedule

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Encode serializes the schedule back into the VCALENDAR form Parse reads,
// one VEVENT per rule. Lines are CRLF terminated as RFC 5545 requires.
func (s *Schedule) Encode() string {
	if s.Empty() {
		return ""
	}
	cal := ical.NewCalendarFor("coursefind")
	for i, r := range s.rules {
		ev := cal.AddEvent("rule-" + strconv.Itoa(i))
		v, params := icsDateTime(r.start)
		ev.SetProperty(ical.ComponentPropertyDtStart, v, params...)
		v, params = icsDateTime(r.start.Add(r.duration))
		ev.SetProperty(ical.ComponentPropertyDtEnd, v, params...)
		ev.AddRrule(r.raw)
		for _, ex := range r.exdates {
			v, params = icsDateTime(ex.In(r.start.Location()))
			ev.AddExdate(v, params...)
		}
	}
	return cal.Serialize(ical.WithNewLineWindows)
}

// icsDateTime renders a UTC time as "YYYYMMDDTHHMMSSZ" and anything else as a
// local time with a TZID parameter.
func icsDateTime(t time.Time) (string, []ical.PropertyParameter) {
	if t.Location() == time.UTC {
		return t.Format("20060102T150405Z"), nil
	}
	return t.Format("20060102T150405"), []ical.PropertyParameter{ical.WithTZID(t.Location().String())}
}
