// Package basket manages the sections a user is planning to take.
package basket

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"coursefind/internal/catalog"
	"coursefind/internal/format"
	"coursefind/internal/model"
	"coursefind/internal/query"
	"coursefind/internal/schedule"
)

// ErrUnknownSection is returned when adding a section the catalog does not
// know or has retired.
var ErrUnknownSection = errors.New("basket: unknown section")

// Add returns b with sectionID (and its course) appended. Adding a section
// twice is a no-op.
func Add(b model.Basket, sectionID string, snap *catalog.Snapshot) (model.Basket, error) {
	sec, ok := snap.Section(sectionID)
	if !ok || sec.Deleted() {
		return b, fmt.Errorf("%w: %s", ErrUnknownSection, sectionID)
	}
	b = clone(b)
	if !slices.Contains(b.SectionIDs, sec.ID) {
		b.SectionIDs = append(b.SectionIDs, sec.ID)
	}
	if !slices.Contains(b.CourseIDs, sec.CourseID) {
		b.CourseIDs = append(b.CourseIDs, sec.CourseID)
	}
	return b, nil
}

// Remove drops sectionID. The course goes too once none of its sections are
// left in the basket.
func Remove(b model.Basket, sectionID string, snap *catalog.Snapshot) model.Basket {
	b = clone(b)
	b.SectionIDs = slices.DeleteFunc(b.SectionIDs, func(id string) bool { return id == sectionID })

	live := make(map[string]bool)
	for _, id := range b.SectionIDs {
		if sec, ok := snap.Section(id); ok {
			live[sec.CourseID] = true
		}
	}
	if sec, ok := snap.Section(sectionID); ok && !live[sec.CourseID] {
		b.CourseIDs = slices.DeleteFunc(b.CourseIDs, func(id string) bool { return id == sec.CourseID })
	}
	return b
}

// SaveQuery remembers q. Blank and repeated queries are ignored.
func SaveQuery(b model.Basket, q string) model.Basket {
	q = strings.TrimSpace(q)
	if q == "" || slices.Contains(b.Queries, q) {
		return b
	}
	b = clone(b)
	b.Queries = append(b.Queries, q)
	return b
}

func clone(b model.Basket) model.Basket {
	b.SectionIDs = slices.Clone(b.SectionIDs)
	b.CourseIDs = slices.Clone(b.CourseIDs)
	b.Queries = slices.Clone(b.Queries)
	return b
}

// QueryHint is a saved query with the credit range its credits: qualifier
// asks for, if any.
type QueryHint struct {
	Query   string `json:"query"`
	Credits string `json:"credits,omitempty"`
}

// Conflict names two basket sections whose meetings overlap.
type Conflict struct {
	A string `json:"a"`
	B string `json:"b"`
}

// View is the basket resolved against a snapshot.
type View struct {
	Term         model.Term       `json:"term"`
	Sections     []*model.Section `json:"sections"`
	Courses      []model.Course   `json:"courses"`
	TotalCredits string           `json:"total_credits"`
	Queries      []QueryHint      `json:"queries"`
	Conflicts    []Conflict       `json:"conflicts"`
}

// Resolve looks the basket's sections up in snap. IDs the snapshot no longer
// knows are skipped.
func Resolve(b model.Basket, snap *catalog.Snapshot) View {
	v := View{
		Term:      b.Term,
		Sections:  make([]*model.Section, 0, len(b.SectionIDs)),
		Courses:   make([]model.Course, 0, len(b.CourseIDs)),
		Queries:   make([]QueryHint, 0, len(b.Queries)),
		Conflicts: make([]Conflict, 0),
	}
	for _, id := range b.SectionIDs {
		if sec, ok := snap.Section(id); ok && !sec.Deleted() {
			v.Sections = append(v.Sections, sec)
		}
	}
	var min, max float64
	for _, id := range b.CourseIDs {
		c, ok := snap.Course(id)
		if !ok || c.Deleted() {
			continue
		}
		v.Courses = append(v.Courses, c)
		min += c.MinCredits
		max += c.MaxCredits
	}
	v.TotalCredits = format.Credits(min, max)

	for _, q := range b.Queries {
		h := QueryHint{Query: q}
		if lo, hi, ok := query.Parse(q).Credits(); ok {
			h.Credits = format.Credits(lo, hi)
		}
		v.Queries = append(v.Queries, h)
	}

	for i := 0; i < len(v.Sections); i++ {
		for j := i + 1; j < len(v.Sections); j++ {
			if schedule.Conflict(v.Sections[i].ParsedTime, v.Sections[j].ParsedTime) {
				v.Conflicts = append(v.Conflicts, Conflict{A: v.Sections[i].ID, B: v.Sections[j].ID})
			}
		}
	}
	return v
}

// Service persists the basket of one term and serializes edits to it.
type Service struct {
	store   *catalog.Store
	catalog *catalog.Catalog
	term    model.Term
	mu      sync.Mutex
}

// NewService wires a Service.
func NewService(st *catalog.Store, cat *catalog.Catalog, term model.Term) *Service {
	return &Service{store: st, catalog: cat, term: term}
}

// Load returns the stored basket.
func (s *Service) Load(ctx context.Context) (model.Basket, error) {
	return s.store.LoadBasket(ctx, s.term)
}

// Schedules returns the meeting schedules of the stored basket's sections in
// the current snapshot.
func (s *Service) Schedules(ctx context.Context) ([]*schedule.Schedule, error) {
	b, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.catalog.Current().Schedules(b.SectionIDs), nil
}

// View resolves the stored basket against the current snapshot.
func (s *Service) View(ctx context.Context) (View, error) {
	b, err := s.Load(ctx)
	if err != nil {
		return View{}, err
	}
	return Resolve(b, s.catalog.Current()), nil
}

// AddSection adds a section and returns the updated view.
func (s *Service) AddSection(ctx context.Context, sectionID string) (View, error) {
	return s.update(ctx, func(b model.Basket, snap *catalog.Snapshot) (model.Basket, error) {
		return Add(b, sectionID, snap)
	})
}

// RemoveSection removes a section and returns the updated view.
func (s *Service) RemoveSection(ctx context.Context, sectionID string) (View, error) {
	return s.update(ctx, func(b model.Basket, snap *catalog.Snapshot) (model.Basket, error) {
		return Remove(b, sectionID, snap), nil
	})
}

// SaveQuery stores a search query with the basket.
func (s *Service) SaveQuery(ctx context.Context, q string) (View, error) {
	return s.update(ctx, func(b model.Basket, _ *catalog.Snapshot) (model.Basket, error) {
		return SaveQuery(b, q), nil
	})
}

func (s *Service) update(ctx context.Context, fn func(model.Basket, *catalog.Snapshot) (model.Basket, error)) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.LoadBasket(ctx, s.term)
	if err != nil {
		return View{}, err
	}
	snap := s.catalog.Current()
	b, err = fn(b, snap)
	if err != nil {
		return View{}, err
	}
	if err := s.store.SaveBasket(ctx, b); err != nil {
		return View{}, err
	}
	return Resolve(b, snap), nil
}
