package schedule

import "time"

// Conflict reports whether any meeting of a can overlap a meeting of b.
//
// Rules are compared pairwise. Two rules collide only when their validity
// windows share at least one calendar day, their weekly day sets intersect
// and their wall-clock times overlap. Wall-clock comparison is at minute
// resolution and ignores the date, so rules that are active in disjoint
// parts of a term (first half vs second half) never collide.
func Conflict(a, b *Schedule) bool {
	if a.Empty() || b.Empty() {
		return false
	}

	if fa, ok := a.FirstStart(); ok {
		if fb, ok := b.FirstStart(); ok && fa.Equal(fb) {
			return true
		}
	}

	for _, ra := range a.rules {
		for _, rb := range b.rules {
			if rulesConflict(ra, rb) {
				return true
			}
		}
	}
	return false
}

func rulesConflict(a, b Rule) bool {
	if !a.fires || !b.fires {
		return false
	}
	if windowsDisjoint(a, b) {
		return false
	}
	if len(a.days) == 0 || len(b.days) == 0 {
		return false
	}
	if !daysIntersect(a.days, b.days) {
		return false
	}

	aStart, aEnd := clockMinutes(a)
	bStart, bEnd := clockMinutes(b)
	switch {
	case aStart == bStart:
		return true
	case aStart < bStart:
		return aEnd > bStart
	default:
		return aStart < bEnd
	}
}

// windowsDisjoint reports whether one rule's last meeting day precedes the
// other's first meeting day.
func windowsDisjoint(a, b Rule) bool {
	if lastA, ok := a.LastDate(); ok && lastA.Before(b.FirstDate()) {
		return true
	}
	if lastB, ok := b.LastDate(); ok && lastB.Before(a.FirstDate()) {
		return true
	}
	return false
}

func daysIntersect(a, b []time.Weekday) bool {
	var mask uint8
	for _, d := range a {
		mask |= 1 << uint(d)
	}
	for _, d := range b {
		if mask&(1<<uint(d)) != 0 {
			return true
		}
	}
	return false
}

// clockMinutes returns the first occurrence's start and end as minutes since
// midnight in the rule's zone. Seconds are dropped from both ends; a meeting
// that runs past midnight ends above 1440.
func clockMinutes(r Rule) (start, end int) {
	e := r.first.Add(r.duration)
	start = r.first.Hour()*60 + r.first.Minute()
	end = e.Hour()*60 + e.Minute() + 1440*daysBetween(r.first, e)
	return start, end
}

// daysBetween counts calendar days from a's date to b's date.
func daysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da) / (24 * time.Hour))
}
