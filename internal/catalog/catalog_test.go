package catalog

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"coursefind/internal/model"
	"coursefind/internal/schedule"
)

var fall = model.Term{Semester: model.SemesterFall, Year: 2024}

func setupStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "data", "coursefind.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mwfBlob(t *testing.T) string {
	t.Helper()
	start := time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)
	r, err := schedule.NewWeeklyRule(start, start.Add(50*time.Minute), time.Date(2024, 12, 13, 0, 0, 0, 0, time.UTC),
		time.Monday, time.Wednesday, time.Friday)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	return schedule.New(r).Encode()
}

func fixture(t *testing.T) ([]model.Course, []model.Section, []model.Instructor) {
	courses := []model.Course{
		{ID: "c1", Subject: "CS", Crse: "1000", Title: "Intro", MinCredits: 3, MaxCredits: 3, Offered: []string{"fall"}},
		{ID: "c2", Subject: "MA", Crse: "1000", Title: "Calculus", MinCredits: 4, MaxCredits: 4},
	}
	sections := []model.Section{
		{ID: "s1", CourseID: "c1", Code: "001", Time: mwfBlob(t), TotalSeats: 30, TakenSeats: 10, AvailableSeats: 20,
			Location: model.Location{Type: model.LocationPhysical, Building: "SCI", Room: "101"}, InstructorIDs: []string{"i1"}},
		{ID: "s2", CourseID: "c2", Code: "001", Location: model.Location{Type: model.LocationOnline}},
	}
	instructors := []model.Instructor{{ID: "i1", Name: "Ada Lovelace", Email: "ada@example.edu"}}
	return courses, sections, instructors
}

func TestOpenCreatesSchema(t *testing.T) {
	st := setupStore(t)
	for _, table := range []string{"courses", "sections", "instructors", "baskets", "feed_syncs"} {
		var count int
		r := st.db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		if err := r.Scan(&count); err != nil {
			t.Fatalf("query schema: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected table %q to exist", table)
		}
	}
	// Migrations are idempotent.
	if err := ApplyMigrations(st.db); err != nil {
		t.Fatalf("second ApplyMigrations: %v", err)
	}
}

func TestReplaceTermRoundTrip(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	courses, sections, instructors := fixture(t)

	if err := st.ReplaceTerm(ctx, fall, courses, sections, instructors); err != nil {
		t.Fatalf("ReplaceTerm: %v", err)
	}
	gotC, gotS, gotI, err := st.LoadTerm(ctx, fall)
	if err != nil {
		t.Fatalf("LoadTerm: %v", err)
	}
	if len(gotC) != 2 || gotC[0].ID != "c1" || gotC[0].Term != fall || !reflect.DeepEqual(gotC[0].Offered, []string{"fall"}) {
		t.Fatalf("courses = %+v", gotC)
	}
	if gotC[1].MinCredits != 4 || gotC[1].Deleted() {
		t.Fatalf("course c2 = %+v", gotC[1])
	}
	if len(gotS) != 2 || gotS[0].ID != "s1" || gotS[0].Location.Room != "101" || gotS[0].AvailableSeats != 20 {
		t.Fatalf("sections = %+v", gotS)
	}
	if !reflect.DeepEqual(gotS[0].InstructorIDs, []string{"i1"}) || gotS[0].Time != sections[0].Time {
		t.Fatalf("section s1 = %+v", gotS[0])
	}
	if len(gotI) != 1 || gotI[0].Name != "Ada Lovelace" {
		t.Fatalf("instructors = %+v", gotI)
	}

	other := model.Term{Semester: model.SemesterSpring, Year: 2025}
	if c, s, _, err := st.LoadTerm(ctx, other); err != nil || len(c) != 0 || len(s) != 0 {
		t.Fatalf("other term: %d courses, %d sections, %v", len(c), len(s), err)
	}
}

func TestReplaceTermSoftDeletesMissing(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	courses, sections, instructors := fixture(t)
	if err := st.ReplaceTerm(ctx, fall, courses, sections, instructors); err != nil {
		t.Fatalf("ReplaceTerm: %v", err)
	}
	if err := st.ReplaceTerm(ctx, fall, courses[:1], sections[:1], instructors); err != nil {
		t.Fatalf("second ReplaceTerm: %v", err)
	}
	gotC, gotS, _, err := st.LoadTerm(ctx, fall)
	if err != nil {
		t.Fatalf("LoadTerm: %v", err)
	}
	if len(gotC) != 2 || gotC[0].Deleted() || !gotC[1].Deleted() {
		t.Fatalf("expected c2 soft-deleted, got %+v", gotC)
	}
	if gotS[0].Deleted() || !gotS[1].Deleted() {
		t.Fatalf("expected s2 soft-deleted, got %+v", gotS)
	}

	// A course that comes back is live again.
	if err := st.ReplaceTerm(ctx, fall, courses, sections, instructors); err != nil {
		t.Fatalf("third ReplaceTerm: %v", err)
	}
	gotC, _, _, _ = st.LoadTerm(ctx, fall)
	if gotC[1].Deleted() {
		t.Fatalf("c2 should be restored")
	}
}

func TestBasketRoundTrip(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	empty, err := st.LoadBasket(ctx, fall)
	if err != nil {
		t.Fatalf("LoadBasket: %v", err)
	}
	if len(empty.SectionIDs) != 0 || empty.Term != fall {
		t.Fatalf("empty basket = %+v", empty)
	}

	b := model.Basket{Term: fall, SectionIDs: []string{"s1", "s2"}, CourseIDs: []string{"c1"}, Queries: []string{"credits:3 physics"}}
	if err := st.SaveBasket(ctx, b); err != nil {
		t.Fatalf("SaveBasket: %v", err)
	}
	b.SectionIDs = []string{"s2"}
	if err := st.SaveBasket(ctx, b); err != nil {
		t.Fatalf("SaveBasket overwrite: %v", err)
	}
	got, err := st.LoadBasket(ctx, fall)
	if err != nil {
		t.Fatalf("LoadBasket: %v", err)
	}
	if !reflect.DeepEqual(got, b) {
		t.Fatalf("basket = %+v, want %+v", got, b)
	}
}

func TestRecordSync(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	if _, ok, err := st.LastSync(ctx, "main"); err != nil || ok {
		t.Fatalf("LastSync before any sync = %v, %v", ok, err)
	}
	at := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := st.RecordSync(ctx, "main", at, 2, 3); err != nil {
		t.Fatalf("RecordSync: %v", err)
	}
	if err := st.RecordSync(ctx, "main", at.Add(time.Hour), 2, 3); err != nil {
		t.Fatalf("RecordSync: %v", err)
	}
	got, ok, err := st.LastSync(ctx, "main")
	if err != nil || !ok || !got.Equal(at.Add(time.Hour)) {
		t.Fatalf("LastSync = %v, %v, %v", got, ok, err)
	}
}

func TestSnapshotParsesTimesAndDropsOrphans(t *testing.T) {
	courses, sections, instructors := fixture(t)
	sections = append(sections,
		model.Section{ID: "orphan", CourseID: "missing"},
		model.Section{ID: "bad", CourseID: "c2", Time: "not a calendar"},
	)
	snap := NewSnapshot(7, fall, courses, sections, instructors, time.UTC)

	if _, ok := snap.Section("orphan"); ok {
		t.Fatalf("orphan section kept")
	}
	s1, ok := snap.Section("s1")
	if !ok || !s1.HasTime() {
		t.Fatalf("s1 schedule not parsed")
	}
	if days := s1.ParsedTime.Rules()[0].Days(); len(days) != 3 {
		t.Fatalf("s1 days = %v", days)
	}
	bad, _ := snap.Section("bad")
	if bad.HasTime() {
		t.Fatalf("unparseable time should leave the section unscheduled")
	}
	if got := snap.SectionsOf("c2"); len(got) != 2 {
		t.Fatalf("SectionsOf(c2) = %d, want 2", len(got))
	}
	if got := snap.SectionsTaughtBy("i1"); len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("SectionsTaughtBy(i1) = %v", got)
	}
	if got := snap.Schedules([]string{"s1", "s2", "nope"}); len(got) != 1 {
		t.Fatalf("Schedules = %d, want 1", len(got))
	}
	if got := snap.Subjects(); !reflect.DeepEqual(got, []string{"CS", "MA"}) {
		t.Fatalf("Subjects = %v", got)
	}

	// Inputs are copied.
	sections[0].AvailableSeats = -1
	if s1.AvailableSeats != 20 {
		t.Fatalf("snapshot shares section storage with caller")
	}
}

func TestSchedulesSkipRetiredSections(t *testing.T) {
	courses, sections, instructors := fixture(t)
	retired := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	sections = append(sections, model.Section{ID: "s3", CourseID: "c1", Code: "002", Time: mwfBlob(t), DeletedAt: &retired})
	snap := NewSnapshot(1, fall, courses, sections, instructors, time.UTC)

	if got := snap.Schedules([]string{"s1", "s3"}); len(got) != 1 {
		t.Fatalf("Schedules = %d, want 1", len(got))
	}
	if got := snap.Schedules([]string{"s3"}); len(got) != 0 {
		t.Fatalf("retired section contributed a schedule")
	}
}

func TestCatalogReloadBumpsVersion(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	courses, sections, instructors := fixture(t)
	if err := st.ReplaceTerm(ctx, fall, courses, sections, instructors); err != nil {
		t.Fatalf("ReplaceTerm: %v", err)
	}

	c := New(time.UTC)
	if v := c.Current().Version; v != 0 {
		t.Fatalf("initial version = %d", v)
	}
	first, err := c.Reload(ctx, st, fall)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	second, err := c.Reload(ctx, st, fall)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if first.Version != 1 || second.Version != 2 || c.Current() != second {
		t.Fatalf("versions %d, %d; current %d", first.Version, second.Version, c.Current().Version)
	}
	if len(second.Courses) != 2 {
		t.Fatalf("courses = %d", len(second.Courses))
	}
}
