package model

import (
	"fmt"
	"strings"
	"time"

	"coursefind/internal/schedule"
)

// Semester is the academic period within a year.
type Semester string

const (
	SemesterFall   Semester = "fall"
	SemesterSpring Semester = "spring"
	SemesterSummer Semester = "summer"
	SemesterWinter Semester = "winter"
)

// ParseSemester accepts any casing of the four semester names.
func ParseSemester(s string) (Semester, error) {
	switch Semester(strings.ToLower(strings.TrimSpace(s))) {
	case SemesterFall:
		return SemesterFall, nil
	case SemesterSpring:
		return SemesterSpring, nil
	case SemesterSummer:
		return SemesterSummer, nil
	case SemesterWinter:
		return SemesterWinter, nil
	}
	return "", fmt.Errorf("unknown semester %q", s)
}

// Term identifies an academic period, e.g. Fall 2024.
type Term struct {
	Semester Semester `json:"semester"`
	Year     int      `json:"year"`
}

func (t Term) String() string {
	if t.Semester == "" {
		return fmt.Sprintf("%d", t.Year)
	}
	return strings.ToUpper(string(t.Semester[:1])) + string(t.Semester[1:]) + fmt.Sprintf(" %d", t.Year)
}

// Course is a catalog entry. Sections hang off it by CourseID.
type Course struct {
	ID            string   `json:"id"`
	Subject       string   `json:"subject"`
	Crse          string   `json:"crse"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Prerequisites string   `json:"prerequisites,omitempty"`
	Offered       []string `json:"offered,omitempty"`

	MinCredits float64 `json:"min_credits"`
	MaxCredits float64 `json:"max_credits"`

	Term Term `json:"term"`

	// DeletedAt marks a course that is retained for history but no longer offered.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the course has been soft-deleted.
func (c Course) Deleted() bool { return c.DeletedAt != nil }

// SortKey is subject followed by catalog number, e.g. "CS1000".
func (c Course) SortKey() string { return c.Subject + c.Crse }

// LocationType classifies where a section meets.
type LocationType string

const (
	LocationUnknown  LocationType = "unknown"
	LocationPhysical LocationType = "physical"
	LocationOnline   LocationType = "online"
	LocationRemote   LocationType = "remote"
)

// Location is where a section meets. Building/Room are only set for
// physical sections.
type Location struct {
	Type     LocationType `json:"type"`
	Building string       `json:"building,omitempty"`
	Room     string       `json:"room,omitempty"`
}

// Section is a scheduled offering of a course.
type Section struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Code     string `json:"code,omitempty"`

	// Time is the serialized iCalendar payload; ParsedTime is derived from it
	// when the catalog snapshot is built and is nil for sections without a
	// usable meeting time.
	Time       string             `json:"time,omitempty"`
	ParsedTime *schedule.Schedule `json:"-"`

	TotalSeats     int `json:"total_seats"`
	TakenSeats     int `json:"taken_seats"`
	AvailableSeats int `json:"available_seats"`

	Location      Location `json:"location"`
	InstructorIDs []string `json:"instructor_ids,omitempty"`

	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the section has been soft-deleted.
func (s Section) Deleted() bool { return s.DeletedAt != nil }

// HasTime reports whether the section carries a parsed meeting schedule.
func (s Section) HasTime() bool { return s.ParsedTime != nil && !s.ParsedTime.Empty() }

// Instructor teaches zero or more sections.
type Instructor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Basket is a user's tentative plan for a term.
type Basket struct {
	Term       Term     `json:"term"`
	SectionIDs []string `json:"section_ids"`
	CourseIDs  []string `json:"course_ids"`
	Queries    []string `json:"queries"`
}

// CourseWithSections is one search result row.
type CourseWithSections struct {
	Course           Course     `json:"course"`
	Sections         []*Section `json:"sections"`
	FilteredSections []*Section `json:"filtered_sections"`
	WasFiltered      bool       `json:"was_filtered"`
}
