package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coursefind/internal/catalog"
	"coursefind/internal/config"
	appLog "coursefind/internal/log"
	"coursefind/internal/model"
)

// Stats summarizes one sync run.
type Stats struct {
	Feeds       int    `json:"feeds"`
	FromCache   int    `json:"from_cache"`
	Courses     int    `json:"courses"`
	Sections    int    `json:"sections"`
	Instructors int    `json:"instructors"`
	Version     uint64 `json:"version"`
}

// Syncer imports the configured feeds for one term into the store and
// republishes the catalog snapshot.
type Syncer struct {
	fetcher *Fetcher
	store   *catalog.Store
	catalog *catalog.Catalog
	term    model.Term
	loc     *time.Location

	mu sync.Mutex
}

// NewSyncer wires a Syncer.
func NewSyncer(f *Fetcher, st *catalog.Store, cat *catalog.Catalog, term model.Term, loc *time.Location) *Syncer {
	if loc == nil {
		loc = time.Local
	}
	return &Syncer{fetcher: f, store: st, catalog: cat, term: term, loc: loc}
}

// Sync fetches every feed and replaces the term's catalog with their union.
// Records with the same ID in later feeds win. If any feed produced no body
// the store is left untouched, since importing a partial set would retire the
// missing feed's courses.
func (s *Syncer) Sync(ctx context.Context, feeds []config.FeedConfig) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(feeds) == 0 {
		return Stats{}, errors.New("no feeds configured")
	}
	sources := make([]Source, len(feeds))
	for i, f := range feeds {
		sources[i] = Source{ID: f.ID, URL: f.URL}
	}

	results, errs := s.fetcher.FetchAll(ctx, sources)
	if len(errs) > 0 {
		return Stats{}, fmt.Errorf("sync aborted: %w", errors.Join(errs...))
	}

	m := newMerger()
	stats := Stats{Feeds: len(results)}
	for _, res := range results {
		doc, err := Decode(res.Body, s.loc)
		if err != nil {
			return Stats{}, fmt.Errorf("feed %s: %w", res.Source.ID, err)
		}
		if doc.Term != s.term {
			return Stats{}, fmt.Errorf("feed %s serves %s, configured term is %s", res.Source.ID, doc.Term, s.term)
		}
		if res.FromCache {
			stats.FromCache++
		}
		m.add(doc)
	}

	courses, sections, instructors := m.result()
	if err := s.store.ReplaceTerm(ctx, s.term, courses, sections, instructors); err != nil {
		return Stats{}, fmt.Errorf("import: %w", err)
	}
	now := time.Now()
	for _, res := range results {
		if err := s.store.RecordSync(ctx, res.Source.ID, now, len(courses), len(sections)); err != nil {
			appLog.Error("record sync failed", err, "feed", res.Source.ID)
		}
	}

	snap, err := s.catalog.Reload(ctx, s.store, s.term)
	if err != nil {
		return Stats{}, err
	}
	stats.Courses = len(courses)
	stats.Sections = len(sections)
	stats.Instructors = len(instructors)
	stats.Version = snap.Version
	appLog.Info("catalog synced",
		"term", s.term.String(),
		"feeds", stats.Feeds,
		"from_cache", stats.FromCache,
		"courses", stats.Courses,
		"sections", stats.Sections,
		"version", stats.Version,
	)
	return stats, nil
}

// merger unions documents by record ID, keeping first-seen order.
type merger struct {
	courses     []model.Course
	sections    []model.Section
	instructors []model.Instructor
	courseAt    map[string]int
	sectionAt   map[string]int
	instrAt     map[string]int
}

func newMerger() *merger {
	return &merger{
		courseAt:  make(map[string]int),
		sectionAt: make(map[string]int),
		instrAt:   make(map[string]int),
	}
}

func (m *merger) add(doc *Document) {
	for _, c := range doc.Courses {
		if i, ok := m.courseAt[c.ID]; ok {
			m.courses[i] = c
			continue
		}
		m.courseAt[c.ID] = len(m.courses)
		m.courses = append(m.courses, c)
	}
	for _, sec := range doc.ModelSections() {
		if i, ok := m.sectionAt[sec.ID]; ok {
			m.sections[i] = sec
			continue
		}
		m.sectionAt[sec.ID] = len(m.sections)
		m.sections = append(m.sections, sec)
	}
	for _, in := range doc.Instructors {
		if i, ok := m.instrAt[in.ID]; ok {
			m.instructors[i] = in
			continue
		}
		m.instrAt[in.ID] = len(m.instructors)
		m.instructors = append(m.instructors, in)
	}
}

func (m *merger) result() ([]model.Course, []model.Section, []model.Instructor) {
	return m.courses, m.sections, m.instructors
}
