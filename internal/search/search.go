// Package search ranks catalog courses for a free-text query and applies the
// structured qualifiers embedded in it.
package search

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"coursefind/internal/catalog"
	"coursefind/internal/filter"
	"coursefind/internal/model"
	"coursefind/internal/query"
	"coursefind/internal/schedule"
)

// Field boosts of the course index.
const (
	boostCrse    = 10
	boostTitle   = 5
	boostSubject = 2
)

// Indexes are the three compiled indexes for one snapshot version.
type Indexes struct {
	Version     uint64
	Courses     *Index
	Sections    *Index
	Instructors *Index
}

// BuildIndexes compiles indexes over the live records of snap.
func BuildIndexes(snap *catalog.Snapshot) *Indexes {
	courses := NewIndexBuilder(true,
		Field{Name: "crse", Boost: boostCrse},
		Field{Name: "title", Boost: boostTitle},
		Field{Name: "subject", Boost: boostSubject},
	)
	for _, c := range snap.Courses {
		if c.Deleted() {
			continue
		}
		courses.Add(c.ID, c.Crse, c.Title, c.Subject)
	}

	// Section identifiers only match exactly; a CRN prefix is not a useful hit.
	sections := NewIndexBuilder(false,
		Field{Name: "id", Boost: 1},
		Field{Name: "code", Boost: 1},
	)
	for _, s := range snap.Sections {
		if s.Deleted() {
			continue
		}
		sections.Add(s.ID, s.ID, s.Code)
	}

	instructors := NewIndexBuilder(true,
		Field{Name: "name", Boost: 1},
		Field{Name: "email", Boost: 1},
	)
	for _, in := range snap.Instructors {
		instructors.Add(in.ID, in.Name, in.Email)
	}

	return &Indexes{
		Version:     snap.Version,
		Courses:     courses.Build(),
		Sections:    sections.Build(),
		Instructors: instructors.Build(),
	}
}

// ranking accumulates per-course scores in first-encounter order.
type ranking struct {
	order   []string
	scores  map[string]float64
	matched map[string]map[string]bool
}

func newRanking() *ranking {
	return &ranking{scores: make(map[string]float64), matched: make(map[string]map[string]bool)}
}

func (r *ranking) add(courseID string, score float64) {
	if _, ok := r.scores[courseID]; !ok {
		r.order = append(r.order, courseID)
	}
	r.scores[courseID] += score
}

func (r *ranking) hitSection(sec *model.Section, score float64) {
	r.add(sec.CourseID, score)
	if r.matched[sec.CourseID] == nil {
		r.matched[sec.CourseID] = make(map[string]bool)
	}
	r.matched[sec.CourseID][sec.ID] = true
}

func (r *ranking) sorted() []string {
	out := append([]string(nil), r.order...)
	sort.SliceStable(out, func(i, j int) bool { return r.scores[out[i]] > r.scores[out[j]] })
	return out
}

// ComputeFilteredCourses runs q against snap. idx may be nil, in which case
// indexes are built for this call. basket holds the schedules of the sections
// already chosen and feeds is:compatible.
func ComputeFilteredCourses(q string, snap *catalog.Snapshot, idx *Indexes, basket []*schedule.Schedule) ([]model.CourseWithSections, error) {
	parsed := query.Parse(q)
	coursePairs := parsed.CoursePairs()
	sectionPairs := parsed.SectionPairs()

	var (
		order   []string
		matched map[string]map[string]bool
	)
	if parsed.Text == "" {
		order = alphabetical(snap)
	} else {
		if idx == nil || idx.Version != snap.Version {
			idx = BuildIndexes(snap)
		}
		r := rank(strings.Fields(parsed.Text), snap, idx)
		order, matched = r.sorted(), r.matched
	}

	out := make([]model.CourseWithSections, 0, len(order))
	for _, id := range order {
		course, ok := snap.Course(id)
		if !ok || course.Deleted() {
			continue
		}
		keep, err := filter.Course(coursePairs, course)
		if err != nil {
			return nil, fmt.Errorf("filter course %s: %w", course.SortKey(), err)
		}
		if !keep {
			continue
		}

		all := snap.SectionsOf(id)
		hits := matched[id]
		wasFiltered := len(sectionPairs) > 0 || len(hits) > 0

		filtered := all
		if wasFiltered {
			filtered = make([]*model.Section, 0, len(all))
			for _, sec := range all {
				if filter.Section(sectionPairs, sec, course, basket) == filter.Removed {
					continue
				}
				if len(hits) > 0 && !hits[sec.ID] {
					continue
				}
				filtered = append(filtered, sec)
			}
			if len(filtered) == 0 {
				continue
			}
		}

		out = append(out, model.CourseWithSections{
			Course:           course,
			Sections:         all,
			FilteredSections: filtered,
			WasFiltered:      wasFiltered,
		})
	}
	return out, nil
}

func rank(tokens []string, snap *catalog.Snapshot, idx *Indexes) *ranking {
	r := newRanking()
	for _, h := range idx.Courses.Search(tokens) {
		r.add(h.Ref, h.Score)
	}
	for _, h := range idx.Sections.Search(tokens) {
		sec, ok := snap.Section(h.Ref)
		if !ok || sec.Deleted() {
			continue
		}
		r.hitSection(sec, h.Score)
	}
	for _, h := range idx.Instructors.Search(tokens) {
		for _, sec := range snap.SectionsTaughtBy(h.Ref) {
			r.hitSection(sec, h.Score)
		}
	}
	return r
}

func alphabetical(snap *catalog.Snapshot) []string {
	live := make([]model.Course, 0, len(snap.Courses))
	for _, c := range snap.Courses {
		if !c.Deleted() {
			live = append(live, c)
		}
	}
	// Collators carry scratch buffers and are not safe for concurrent use.
	col := collate.New(language.English)
	sort.SliceStable(live, func(i, j int) bool {
		return col.CompareString(live[i].SortKey(), live[j].SortKey()) < 0
	})
	out := make([]string, len(live))
	for i, c := range live {
		out[i] = c.ID
	}
	return out
}
