package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// sqlite driver registration
	_ "modernc.org/sqlite"

	"coursefind/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store persists catalog records and baskets in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory if needed, opens the database at path and
// applies the schema. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer; modernc's sqlite serializes anyway and this keeps
	// :memory: databases from splitting across connections.
	db.SetMaxOpenConns(1)
	if err := ApplyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// ApplyMigrations applies the embedded schema.
func ApplyMigrations(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ReplaceTerm makes the stored catalog of term match the given records.
// Courses and sections of the term that are missing from the input are
// soft-deleted rather than removed.
func (s *Store) ReplaceTerm(ctx context.Context, term model.Term, courses []model.Course, sections []model.Section, instructors []model.Instructor) error {
	trx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = trx.Rollback() }()

	now := formatTime(time.Now().UTC())
	if _, err := trx.ExecContext(ctx,
		`UPDATE sections SET deleted_at = ? WHERE deleted_at IS NULL AND course_id IN
		 (SELECT id FROM courses WHERE semester = ? AND year = ?)`,
		now, string(term.Semester), term.Year); err != nil {
		return fmt.Errorf("retire sections: %w", err)
	}
	if _, err := trx.ExecContext(ctx,
		`UPDATE courses SET deleted_at = ? WHERE deleted_at IS NULL AND semester = ? AND year = ?`,
		now, string(term.Semester), term.Year); err != nil {
		return fmt.Errorf("retire courses: %w", err)
	}

	for _, c := range courses {
		offered, err := json.Marshal(nonNil(c.Offered))
		if err != nil {
			return err
		}
		if _, err := trx.ExecContext(ctx,
			`INSERT INTO courses (id, semester, year, subject, crse, title, description, prerequisites, offered, min_credits, max_credits, deleted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   semester = excluded.semester, year = excluded.year, subject = excluded.subject,
			   crse = excluded.crse, title = excluded.title, description = excluded.description,
			   prerequisites = excluded.prerequisites, offered = excluded.offered,
			   min_credits = excluded.min_credits, max_credits = excluded.max_credits,
			   deleted_at = excluded.deleted_at`,
			c.ID, string(term.Semester), term.Year, c.Subject, c.Crse, c.Title, c.Description,
			c.Prerequisites, string(offered), c.MinCredits, c.MaxCredits, nullTime(c.DeletedAt),
		); err != nil {
			return fmt.Errorf("upsert course %s: %w", c.ID, err)
		}
	}

	for i, sec := range sections {
		instr, err := json.Marshal(nonNil(sec.InstructorIDs))
		if err != nil {
			return err
		}
		loc := sec.Location.Type
		if loc == "" {
			loc = model.LocationUnknown
		}
		if _, err := trx.ExecContext(ctx,
			`INSERT INTO sections (id, course_id, code, time, total_seats, taken_seats, available_seats, location_type, building, room, instructor_ids, position, deleted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   course_id = excluded.course_id, code = excluded.code, time = excluded.time,
			   total_seats = excluded.total_seats, taken_seats = excluded.taken_seats,
			   available_seats = excluded.available_seats, location_type = excluded.location_type,
			   building = excluded.building, room = excluded.room,
			   instructor_ids = excluded.instructor_ids, position = excluded.position,
			   deleted_at = excluded.deleted_at`,
			sec.ID, sec.CourseID, sec.Code, sec.Time, sec.TotalSeats, sec.TakenSeats, sec.AvailableSeats,
			string(loc), sec.Location.Building, sec.Location.Room, string(instr), i, nullTime(sec.DeletedAt),
		); err != nil {
			return fmt.Errorf("upsert section %s: %w", sec.ID, err)
		}
	}

	for _, in := range instructors {
		if _, err := trx.ExecContext(ctx,
			`INSERT INTO instructors (id, name, email) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email`,
			in.ID, in.Name, in.Email); err != nil {
			return fmt.Errorf("upsert instructor %s: %w", in.ID, err)
		}
	}

	return trx.Commit()
}

// LoadTerm reads every course of term (deleted ones included), their
// sections and every known instructor.
func (s *Store) LoadTerm(ctx context.Context, term model.Term) ([]model.Course, []model.Section, []model.Instructor, error) {
	courses, err := s.loadCourses(ctx, term)
	if err != nil {
		return nil, nil, nil, err
	}
	sections, err := s.loadSections(ctx, term)
	if err != nil {
		return nil, nil, nil, err
	}
	instructors, err := s.loadInstructors(ctx, term)
	if err != nil {
		return nil, nil, nil, err
	}
	return courses, sections, instructors, nil
}

func (s *Store) loadCourses(ctx context.Context, term model.Term) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject, crse, title, description, prerequisites, offered, min_credits, max_credits, deleted_at
		 FROM courses WHERE semester = ? AND year = ? ORDER BY subject, crse, id`,
		string(term.Semester), term.Year)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Course
	for rows.Next() {
		var (
			c       model.Course
			offered string
			deleted sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Subject, &c.Crse, &c.Title, &c.Description, &c.Prerequisites,
			&offered, &c.MinCredits, &c.MaxCredits, &deleted); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(offered), &c.Offered); err != nil {
			return nil, fmt.Errorf("course %s offered: %w", c.ID, err)
		}
		c.Term = term
		c.DeletedAt = parseNullTime(deleted)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadSections(ctx context.Context, term model.Term) ([]model.Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.course_id, s.code, s.time, s.total_seats, s.taken_seats, s.available_seats,
		        s.location_type, s.building, s.room, s.instructor_ids, s.deleted_at
		 FROM sections s JOIN courses c ON c.id = s.course_id
		 WHERE c.semester = ? AND c.year = ? ORDER BY s.position, s.id`,
		string(term.Semester), term.Year)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Section
	for rows.Next() {
		var (
			sec     model.Section
			locType string
			instr   string
			deleted sql.NullString
		)
		if err := rows.Scan(&sec.ID, &sec.CourseID, &sec.Code, &sec.Time, &sec.TotalSeats, &sec.TakenSeats,
			&sec.AvailableSeats, &locType, &sec.Location.Building, &sec.Location.Room, &instr, &deleted); err != nil {
			return nil, err
		}
		sec.Location.Type = model.LocationType(locType)
		if err := json.Unmarshal([]byte(instr), &sec.InstructorIDs); err != nil {
			return nil, fmt.Errorf("section %s instructors: %w", sec.ID, err)
		}
		sec.DeletedAt = parseNullTime(deleted)
		out = append(out, sec)
	}
	return out, rows.Err()
}

// loadInstructors returns all instructors. The table is small and shared
// across terms, so no join is attempted.
func (s *Store) loadInstructors(ctx context.Context, _ model.Term) ([]model.Instructor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email FROM instructors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query instructors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Instructor
	for rows.Next() {
		var in model.Instructor
		if err := rows.Scan(&in.ID, &in.Name, &in.Email); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// LoadBasket returns the stored basket of term, or an empty one.
func (s *Store) LoadBasket(ctx context.Context, term model.Term) (model.Basket, error) {
	b := model.Basket{Term: term, SectionIDs: []string{}, CourseIDs: []string{}, Queries: []string{}}
	var sections, courses, queries string
	err := s.db.QueryRowContext(ctx,
		`SELECT section_ids, course_ids, queries FROM baskets WHERE semester = ? AND year = ?`,
		string(term.Semester), term.Year).Scan(&sections, &courses, &queries)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("load basket: %w", err)
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{sections, &b.SectionIDs}, {courses, &b.CourseIDs}, {queries, &b.Queries}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return b, fmt.Errorf("decode basket: %w", err)
		}
	}
	return b, nil
}

// SaveBasket stores b under its term, replacing any previous basket.
func (s *Store) SaveBasket(ctx context.Context, b model.Basket) error {
	sections, _ := json.Marshal(nonNil(b.SectionIDs))
	courses, _ := json.Marshal(nonNil(b.CourseIDs))
	queries, _ := json.Marshal(nonNil(b.Queries))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO baskets (semester, year, section_ids, course_ids, queries, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(semester, year) DO UPDATE SET
		   section_ids = excluded.section_ids, course_ids = excluded.course_ids,
		   queries = excluded.queries, updated_at = excluded.updated_at`,
		string(b.Term.Semester), b.Term.Year, string(sections), string(courses), string(queries),
		formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("save basket: %w", err)
	}
	return nil
}

// RecordSync notes a successful feed import.
func (s *Store) RecordSync(ctx context.Context, feedID string, at time.Time, courses, sections int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO feed_syncs (feed_id, synced_at, courses, sections) VALUES (?, ?, ?, ?)`,
		feedID, formatTime(at.UTC()), courses, sections)
	return err
}

// LastSync returns when feedID was last imported.
func (s *Store) LastSync(ctx context.Context, feedID string) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(synced_at) FROM feed_syncs WHERE feed_id = ?`, feedID).Scan(&raw)
	if err != nil {
		return time.Time{}, false, err
	}
	t := parseNullTime(raw)
	if t == nil {
		return time.Time{}, false, nil
	}
	return *t, true, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.Format(timeLayout) }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(t.UTC())
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
