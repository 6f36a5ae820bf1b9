package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "coursefind/internal/log"
)

// Parse decodes a section's serialized meeting time, a VCALENDAR payload
// where every VEVENT is one rule:
//
//   - DTSTART/DTEND give the first meeting; DTEND is optional (zero length).
//   - RRULE gives the recurrence; a VEVENT without RRULE meets once.
//   - EXDATE removes single meetings (holidays).
//
// Floating times are anchored in loc, UTC times are converted to loc and
// TZID times keep their own zone.
func Parse(blob string, loc *time.Location) (*Schedule, error) {
	if strings.TrimSpace(blob) == "" {
		return nil, ErrNoSchedule
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(strings.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("schedule: parse calendar: %w", err)
	}

	rules := make([]Rule, 0, 1)
	for i, ve := range cal.Events() {
		r, err := parseVEvent(ve, loc)
		if err != nil {
			return nil, fmt.Errorf("schedule: vevent %d: %w", i, err)
		}
		rules = append(rules, r)
	}
	if len(rules) == 0 {
		return nil, ErrNoSchedule
	}
	return New(rules...), nil
}

// ParseOrNil is Parse for catalog loading: a malformed payload is logged and
// treated as "no meeting time" so one bad record cannot break search.
func ParseOrNil(sectionID, blob string, loc *time.Location) *Schedule {
	s, err := Parse(blob, loc)
	if err != nil {
		if !errors.Is(err, ErrNoSchedule) {
			appLog.Warn("section time unparseable; treating as unscheduled", "section", sectionID, "err", err)
		}
		return nil
	}
	return s
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (Rule, error) {
	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || startProp.Value == "" {
		return Rule{}, errors.New("missing DTSTART")
	}
	start, err := parseICSTime(startProp.Value, tzidOf(startProp.ICalParameters), loc)
	if err != nil {
		return Rule{}, fmt.Errorf("DTSTART: %w", err)
	}

	end := start
	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil && endProp.Value != "" {
		end, err = parseICSTime(endProp.Value, tzidOf(endProp.ICalParameters), loc)
		if err != nil {
			return Rule{}, fmt.Errorf("DTEND: %w", err)
		}
	}
	if end.Before(start) {
		return Rule{}, errors.New("DTEND before DTSTART")
	}

	// EXDATE can appear multiple times, each with a comma separated list.
	var exdates []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tzid := tzidOf(p.ICalParameters)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseICSTime(part, tzid, loc)
			if err != nil {
				return Rule{}, fmt.Errorf("EXDATE: %w", err)
			}
			exdates = append(exdates, t)
		}
	}

	raw := "FREQ=DAILY;COUNT=1"
	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil && rruleProp.Value != "" {
		raw = rruleProp.Value
	}
	return NewRule(raw, start, end.Sub(start), exdates...)
}

func tzidOf(params map[string][]string) string {
	if params == nil {
		return ""
	}
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

// parseICSTime parses DATE / DATE-TIME / UTC DATE-TIME values.
func parseICSTime(v, tzid string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20240902T140000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}

	in := loc
	if tzid != "" {
		if tz, err := time.LoadLocation(tzid); err == nil {
			in = tz
		} else {
			appLog.Debug("unknown TZID; using default zone", "tzid", tzid, "zone", loc.String())
		}
	}

	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, in)
	}
	return time.ParseInLocation("20060102", v, in)
}
