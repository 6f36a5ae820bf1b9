package basket

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"coursefind/internal/catalog"
	"coursefind/internal/model"
	"coursefind/internal/schedule"
)

var fall = model.Term{Semester: model.SemesterFall, Year: 2024}

func weekly(t *testing.T, hour int, days ...time.Weekday) string {
	t.Helper()
	start := time.Date(2024, 9, 2, hour, 0, 0, 0, time.UTC)
	r, err := schedule.NewWeeklyRule(start, start.Add(50*time.Minute), time.Date(2024, 12, 13, 0, 0, 0, 0, time.UTC), days...)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	return schedule.New(r).Encode()
}

func records(t *testing.T) ([]model.Course, []model.Section) {
	courses := []model.Course{
		{ID: "cs", Subject: "CS", Crse: "1000", MinCredits: 3, MaxCredits: 3},
		{ID: "ma", Subject: "MA", Crse: "1000", MinCredits: 4, MaxCredits: 4},
		{ID: "mu", Subject: "MU", Crse: "1100", MinCredits: 1, MaxCredits: 2},
	}
	sections := []model.Section{
		{ID: "cs1", CourseID: "cs", Time: weekly(t, 10, time.Monday, time.Wednesday, time.Friday)},
		{ID: "cs2", CourseID: "cs", Time: weekly(t, 10, time.Tuesday, time.Thursday)},
		{ID: "ma1", CourseID: "ma", Time: weekly(t, 10, time.Monday)},
		{ID: "mu1", CourseID: "mu"},
	}
	return courses, sections
}

func testSnapshot(t *testing.T) *catalog.Snapshot {
	courses, sections := records(t)
	return catalog.NewSnapshot(1, fall, courses, sections, nil, time.UTC)
}

func TestAddRemove(t *testing.T) {
	snap := testSnapshot(t)
	b := model.Basket{Term: fall}

	b, err := Add(b, "cs1", snap)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	b, _ = Add(b, "cs2", snap)
	b, _ = Add(b, "cs1", snap)
	if !reflect.DeepEqual(b.SectionIDs, []string{"cs1", "cs2"}) || !reflect.DeepEqual(b.CourseIDs, []string{"cs"}) {
		t.Fatalf("basket = %+v", b)
	}
	if _, err := Add(b, "nope", snap); !errors.Is(err, ErrUnknownSection) {
		t.Fatalf("err = %v, want ErrUnknownSection", err)
	}

	b = Remove(b, "cs1", snap)
	if !reflect.DeepEqual(b.CourseIDs, []string{"cs"}) {
		t.Fatalf("course dropped while a section remains: %+v", b)
	}
	b = Remove(b, "cs2", snap)
	if len(b.SectionIDs) != 0 || len(b.CourseIDs) != 0 {
		t.Fatalf("basket not emptied: %+v", b)
	}
}

func TestAddDoesNotAlias(t *testing.T) {
	snap := testSnapshot(t)
	orig := model.Basket{SectionIDs: make([]string, 0, 4)}
	next, _ := Add(orig, "cs1", snap)
	_, _ = Add(orig, "ma1", snap)
	if next.SectionIDs[0] != "cs1" {
		t.Fatalf("baskets share storage: %v", next.SectionIDs)
	}
}

func TestResolve(t *testing.T) {
	snap := testSnapshot(t)
	b := model.Basket{Term: fall}
	for _, id := range []string{"cs1", "ma1", "mu1"} {
		var err error
		if b, err = Add(b, id, snap); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	b = SaveQuery(b, "credits:3-4 physics")
	b = SaveQuery(b, "  ")
	b = SaveQuery(b, "history")
	b = SaveQuery(b, "history")

	v := Resolve(b, snap)
	if len(v.Sections) != 3 || len(v.Courses) != 3 {
		t.Fatalf("view = %+v", v)
	}
	if v.TotalCredits != "8-9 credits" {
		t.Fatalf("TotalCredits = %q", v.TotalCredits)
	}
	wantQ := []QueryHint{{Query: "credits:3-4 physics", Credits: "3-4 credits"}, {Query: "history"}}
	if !reflect.DeepEqual(v.Queries, wantQ) {
		t.Fatalf("Queries = %+v", v.Queries)
	}
	if want := []Conflict{{A: "cs1", B: "ma1"}}; !reflect.DeepEqual(v.Conflicts, want) {
		t.Fatalf("Conflicts = %+v, want %+v", v.Conflicts, want)
	}
}

func TestServicePersists(t *testing.T) {
	ctx := context.Background()
	st, err := catalog.Open(filepath.Join(t.TempDir(), "coursefind.db"))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	defer func() { _ = st.Close() }()
	courses, sections := records(t)
	if err := st.ReplaceTerm(ctx, fall, courses, sections, nil); err != nil {
		t.Fatalf("ReplaceTerm: %v", err)
	}
	cat := catalog.New(time.UTC)
	if _, err := cat.Reload(ctx, st, fall); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	svc := NewService(st, cat, fall)
	if _, err := svc.AddSection(ctx, "cs2"); err != nil {
		t.Fatalf("AddSection: %v", err)
	}
	if _, err := svc.AddSection(ctx, "missing"); !errors.Is(err, ErrUnknownSection) {
		t.Fatalf("err = %v, want ErrUnknownSection", err)
	}
	if _, err := svc.SaveQuery(ctx, "is:compatible"); err != nil {
		t.Fatalf("SaveQuery: %v", err)
	}

	// A fresh service over the same store sees the saved basket.
	v, err := NewService(st, cat, fall).View(ctx)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(v.Sections) != 1 || v.Sections[0].ID != "cs2" || v.TotalCredits != "3 credits" {
		t.Fatalf("view = %+v", v)
	}
	scheds, err := svc.Schedules(ctx)
	if err != nil || len(scheds) != 1 {
		t.Fatalf("Schedules = %d, %v", len(scheds), err)
	}

	if v, err = svc.RemoveSection(ctx, "cs2"); err != nil || len(v.Sections) != 0 {
		t.Fatalf("RemoveSection = %+v, %v", v, err)
	}
}
