// Package catalog stores course records and publishes term-scoped snapshots
// of them for searching.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	appLog "coursefind/internal/log"
	"coursefind/internal/model"
	"coursefind/internal/schedule"
)

// Snapshot is an immutable, term-scoped view of the catalog. Section
// schedules are parsed once when the snapshot is built.
type Snapshot struct {
	Version     uint64
	Term        model.Term
	Courses     []model.Course
	Sections    []*model.Section
	Instructors []model.Instructor

	courseByID       map[string]int
	sectionByID      map[string]*model.Section
	sectionsByCourse map[string][]*model.Section
	taughtBy         map[string][]*model.Section
	instructorByID   map[string]int
}

// NewSnapshot copies its inputs, parses section times in loc and drops
// sections whose course is unknown.
func NewSnapshot(version uint64, term model.Term, courses []model.Course, sections []model.Section, instructors []model.Instructor, loc *time.Location) *Snapshot {
	s := &Snapshot{
		Version:          version,
		Term:             term,
		Courses:          append([]model.Course(nil), courses...),
		Instructors:      append([]model.Instructor(nil), instructors...),
		courseByID:       make(map[string]int, len(courses)),
		sectionByID:      make(map[string]*model.Section, len(sections)),
		sectionsByCourse: make(map[string][]*model.Section),
		taughtBy:         make(map[string][]*model.Section),
		instructorByID:   make(map[string]int, len(instructors)),
	}
	for i, c := range s.Courses {
		s.courseByID[c.ID] = i
	}
	for i, in := range s.Instructors {
		s.instructorByID[in.ID] = i
	}

	s.Sections = make([]*model.Section, 0, len(sections))
	for i := range sections {
		sec := sections[i]
		if _, ok := s.courseByID[sec.CourseID]; !ok {
			appLog.Debug("dropping orphan section", "section", sec.ID, "course", sec.CourseID)
			continue
		}
		sec.InstructorIDs = append([]string(nil), sec.InstructorIDs...)
		if sec.ParsedTime == nil && strings.TrimSpace(sec.Time) != "" {
			sec.ParsedTime = schedule.ParseOrNil(sec.ID, sec.Time, loc)
		}
		p := &sec
		s.Sections = append(s.Sections, p)
		s.sectionByID[p.ID] = p
		if p.Deleted() {
			continue
		}
		s.sectionsByCourse[p.CourseID] = append(s.sectionsByCourse[p.CourseID], p)
		for _, id := range p.InstructorIDs {
			s.taughtBy[id] = append(s.taughtBy[id], p)
		}
	}
	return s
}

// Course looks a course up by ID, deleted or not.
func (s *Snapshot) Course(id string) (model.Course, bool) {
	i, ok := s.courseByID[id]
	if !ok {
		return model.Course{}, false
	}
	return s.Courses[i], true
}

// Section looks a section up by ID, deleted or not.
func (s *Snapshot) Section(id string) (*model.Section, bool) {
	sec, ok := s.sectionByID[id]
	return sec, ok
}

// Instructor looks an instructor up by ID.
func (s *Snapshot) Instructor(id string) (model.Instructor, bool) {
	i, ok := s.instructorByID[id]
	if !ok {
		return model.Instructor{}, false
	}
	return s.Instructors[i], true
}

// SectionsOf returns the live sections of a course in catalog order.
func (s *Snapshot) SectionsOf(courseID string) []*model.Section {
	return s.sectionsByCourse[courseID]
}

// SectionsTaughtBy returns the live sections an instructor teaches.
func (s *Snapshot) SectionsTaughtBy(instructorID string) []*model.Section {
	return s.taughtBy[instructorID]
}

// Schedules resolves section IDs to their parsed schedules, skipping unknown
// IDs, retired sections and sections without a meeting time.
func (s *Snapshot) Schedules(sectionIDs []string) []*schedule.Schedule {
	out := make([]*schedule.Schedule, 0, len(sectionIDs))
	for _, id := range sectionIDs {
		sec, ok := s.sectionByID[id]
		if !ok || sec.Deleted() || !sec.HasTime() {
			continue
		}
		out = append(out, sec.ParsedTime)
	}
	return out
}

// Subjects lists the distinct subject codes of live courses, sorted.
func (s *Snapshot) Subjects() []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, c := range s.Courses {
		if c.Deleted() || c.Subject == "" || seen[c.Subject] {
			continue
		}
		seen[c.Subject] = true
		out = append(out, c.Subject)
	}
	sort.Strings(out)
	return out
}

// Catalog publishes the current snapshot. Readers never block writers.
type Catalog struct {
	mu      sync.Mutex
	cur     atomic.Pointer[Snapshot]
	version uint64
	loc     *time.Location
}

// New returns an empty catalog whose section times are read in loc.
func New(loc *time.Location) *Catalog {
	if loc == nil {
		loc = time.Local
	}
	c := &Catalog{loc: loc}
	c.cur.Store(NewSnapshot(0, model.Term{}, nil, nil, nil, loc))
	return c
}

// Current returns the latest published snapshot.
func (c *Catalog) Current() *Snapshot { return c.cur.Load() }

// Replace builds and publishes a new snapshot with the next version number.
func (c *Catalog) Replace(term model.Term, courses []model.Course, sections []model.Section, instructors []model.Instructor) *Snapshot {
	c.mu.Lock()
	c.version++
	snap := NewSnapshot(c.version, term, courses, sections, instructors, c.loc)
	c.cur.Store(snap)
	c.mu.Unlock()

	appLog.Info("catalog snapshot published",
		"version", snap.Version,
		"term", term.String(),
		"courses", len(snap.Courses),
		"sections", len(snap.Sections),
	)
	return snap
}

// Reload reads term from st and publishes it.
func (c *Catalog) Reload(ctx context.Context, st *Store, term model.Term) (*Snapshot, error) {
	courses, sections, instructors, err := st.LoadTerm(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", term, err)
	}
	return c.Replace(term, courses, sections, instructors), nil
}
