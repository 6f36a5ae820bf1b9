package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"coursefind/internal/catalog"
	"coursefind/internal/config"
	"coursefind/internal/model"
	"coursefind/internal/schedule"
)

var fall = model.Term{Semester: model.SemesterFall, Year: 2024}

func weekly(t *testing.T, days ...time.Weekday) string {
	t.Helper()
	start := time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)
	r, err := schedule.NewWeeklyRule(start, start.Add(50*time.Minute), time.Date(2024, 12, 13, 0, 0, 0, 0, time.UTC), days...)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	return schedule.New(r).Encode()
}

// setup writes a config pointing at a seeded database and returns its path.
func setup(t *testing.T, feeds ...config.FeedConfig) string {
	t.Helper()
	t.Setenv(configEnv, "")
	dir := t.TempDir()

	c := config.DefaultConfig()
	c.Timezone = "UTC"
	c.DatabasePath = filepath.Join(dir, "coursefind.db")
	c.CacheDir = filepath.Join(dir, "cache")
	c.Feeds = feeds
	path := filepath.Join(dir, "coursefind.yaml")
	if err := config.Save(path, c); err != nil {
		t.Fatalf("config.Save: %v", err)
	}

	st, err := catalog.Open(c.DatabasePath)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	defer func() { _ = st.Close() }()
	courses := []model.Course{
		{ID: "cs", Subject: "CS", Crse: "1000", Title: "Intro to Programming", MinCredits: 3, MaxCredits: 3},
		{ID: "ph", Subject: "PHYS", Crse: "2100", Title: "Mechanics", MinCredits: 4, MaxCredits: 4},
	}
	sections := []model.Section{
		{ID: "a", CourseID: "cs", Code: "001", Time: weekly(t, time.Monday, time.Wednesday, time.Friday), AvailableSeats: 4},
		{ID: "b", CourseID: "cs", Code: "002", Time: weekly(t, time.Tuesday, time.Thursday)},
		{ID: "p", CourseID: "ph", Code: "001", Time: weekly(t, time.Monday)},
	}
	if err := st.ReplaceTerm(context.Background(), fall, courses, sections, nil); err != nil {
		t.Fatalf("ReplaceTerm: %v", err)
	}
	return path
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	path := setup(t)
	out, err := run(t, "--config", path, "parse", "cs1000", "has:seats", "networks")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var got struct {
		Qualifiers []map[string]string `json:"qualifiers"`
		Text       string              `json:"text"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got.Qualifiers) != 2 || got.Qualifiers[0]["key"] != "has" || got.Qualifiers[1]["value"] != "cs" {
		t.Fatalf("qualifiers = %v", got.Qualifiers)
	}
	if got.Text != "1000 networks" {
		t.Fatalf("text = %q", got.Text)
	}
}

func TestSearchCommand(t *testing.T) {
	path := setup(t)

	out, err := run(t, "--config", path, "search", "is:compatible", "--basket", "p")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// PHYS 2100 only has p, which conflicts with itself, so it drops out.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "CS 1000  Intro to Programming  (3 credits)") {
		t.Fatalf("output:\n%s", out)
	}
	if !strings.HasPrefix(lines[1], "  x a") || !strings.HasPrefix(lines[2], "    b") {
		t.Fatalf("section marks:\n%s", out)
	}

	out, err = run(t, "--config", path, "search", "mechanics", "--json")
	if err != nil {
		t.Fatalf("search --json: %v", err)
	}
	var rows []model.CourseWithSections
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Course.ID != "ph" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestSearchSuggestsSubjects(t *testing.T) {
	path := setup(t)
	out, err := run(t, "--config", path, "search", "subject:pys")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "no courses found") || !strings.Contains(out, "did you mean: PHYS") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestConflictCommand(t *testing.T) {
	path := setup(t)

	out, err := run(t, "--config", path, "conflict", "a", "p")
	if err != nil {
		t.Fatalf("conflict: %v", err)
	}
	if !strings.HasPrefix(out, "a and p conflict") {
		t.Fatalf("output:\n%s", out)
	}
	out, _ = run(t, "--config", path, "conflict", "b", "p")
	if !strings.HasPrefix(out, "b and p do not conflict") {
		t.Fatalf("output:\n%s", out)
	}
	if _, err := run(t, "--config", path, "conflict", "a", "zzz"); err == nil {
		t.Fatalf("expected error for unknown section")
	}
}

func TestBasketCommands(t *testing.T) {
	path := setup(t)

	out, err := run(t, "--config", path, "basket", "add", "a", "p")
	if err != nil {
		t.Fatalf("basket add: %v", err)
	}
	if !strings.Contains(out, "2 sections, 7 credits") || !strings.Contains(out, "conflict: a and p") {
		t.Fatalf("output:\n%s", out)
	}
	if _, err := run(t, "--config", path, "basket", "save-query", "credits:3+", "lab"); err != nil {
		t.Fatalf("save-query: %v", err)
	}
	if _, err := run(t, "--config", path, "basket", "remove", "p"); err != nil {
		t.Fatalf("basket remove: %v", err)
	}

	out, err = run(t, "--config", path, "basket", "list")
	if err != nil {
		t.Fatalf("basket list: %v", err)
	}
	if !strings.Contains(out, "1 sections, 3 credits") || !strings.Contains(out, `query "credits:3+ lab" (3+ credits)`) {
		t.Fatalf("output:\n%s", out)
	}

	// The stored basket is the default compatibility context for search.
	out, err = run(t, "--config", path, "search", "cs1000", "is:compatible")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "  x a ") {
		t.Fatalf("section a should be filtered against itself:\n%s", out)
	}

	if _, err := run(t, "--config", path, "basket", "add", "missing"); err == nil {
		t.Fatalf("expected error for unknown section")
	}
}

const feedBody = `{
  "term": {"semester": "fall", "year": 2024},
  "courses": [{"id": "hi", "subject": "HIST", "crse": "1010", "title": "World History", "min_credits": 3, "max_credits": 3}],
  "sections": [{"id": "h1", "course_id": "hi", "code": "001",
    "meetings": [{"days": "TR", "start": "09:30", "end": "10:45", "first_date": "2024-09-03", "last_date": "2024-12-12"}]}]
}`

func TestSyncCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()
	path := setup(t, config.FeedConfig{ID: "main", URL: srv.URL + "/catalog.json"})

	out, err := run(t, "--config", path, "sync")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !strings.Contains(out, "1 courses, 1 sections") {
		t.Fatalf("output:\n%s", out)
	}

	out, err = run(t, "--config", path, "search", "history")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.HasPrefix(out, "HIST 1010  World History") || strings.Contains(out, "CS 1000") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestSyncWithoutFeeds(t *testing.T) {
	path := setup(t)
	if _, err := run(t, "--config", path, "sync"); err == nil || !strings.Contains(err.Error(), "no feeds") {
		t.Fatalf("err = %v", err)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	path := setup(t)
	t.Setenv(configEnv, path)
	out, err := run(t, "conflict", "a", "b")
	if err != nil {
		t.Fatalf("conflict: %v", err)
	}
	if !strings.HasPrefix(out, "a and b do not conflict") {
		t.Fatalf("output:\n%s", out)
	}
}
