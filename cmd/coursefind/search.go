package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"coursefind/internal/format"
	"coursefind/internal/model"
	"coursefind/internal/query"
	"coursefind/internal/schedule"
	"coursefind/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog",
	Long:  "Search courses with qualifiers such as subject:cs, level:3000, credits:3+, has:seats, is:online or is:compatible plus free text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		q := strings.Join(args, " ")
		snap := a.catalog.Current()

		var sched []*schedule.Schedule
		if cmd.Flags().Changed("basket") {
			ids, _ := cmd.Flags().GetString("basket")
			sched = snap.Schedules(splitIDs(ids))
		} else if sched, err = a.baskets.Schedules(ctx); err != nil {
			return err
		}

		rows, err := a.engine.Search(q, snap, sched)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(out, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "no courses found")
			suggestSubjects(out, query.Parse(q), snap.Subjects())
			return nil
		}
		printResults(out, rows)
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <query>",
	Short: "Show how a query splits into qualifiers and search text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parsed := query.Parse(strings.Join(args, " "))
		if parsed.Pairs == nil {
			parsed.Pairs = []query.Pair{}
		}
		return writeJSON(cmd.OutOrStdout(), parsed)
	},
}

var conflictCmd = &cobra.Command{
	Use:   "conflict <section> <section>",
	Short: "Report whether two sections meet at overlapping times",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		snap := a.catalog.Current()
		x, ok := snap.Section(args[0])
		if !ok {
			return fmt.Errorf("unknown section %q", args[0])
		}
		y, ok := snap.Section(args[1])
		if !ok {
			return fmt.Errorf("unknown section %q", args[1])
		}
		out := cmd.OutOrStdout()
		if schedule.Conflict(x.ParsedTime, y.ParsedTime) {
			fmt.Fprintf(out, "%s and %s conflict\n", x.ID, y.ID)
		} else {
			fmt.Fprintf(out, "%s and %s do not conflict\n", x.ID, y.ID)
		}
		fmt.Fprintf(out, "  %s: %s\n  %s: %s\n", x.ID, format.Schedule(x.ParsedTime), y.ID, format.Schedule(y.ParsedTime))
		return nil
	},
}

func init() {
	searchCmd.Flags().String("basket", "", "comma separated section IDs to check compatibility against (default: stored basket)")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(conflictCmd)
}

func printResults(w io.Writer, rows []model.CourseWithSections) {
	for _, row := range rows {
		c := row.Course
		fmt.Fprintf(w, "%s %s  %s  (%s)\n", c.Subject, c.Crse, c.Title, format.Credits(c.MinCredits, c.MaxCredits))
		for _, sec := range row.Sections {
			mark := " "
			if row.WasFiltered && !containsSection(row.FilteredSections, sec.ID) {
				mark = "x"
			}
			fmt.Fprintf(w, "  %s %-8s %-4s %s", mark, sec.ID, sec.Code, format.Schedule(sec.ParsedTime))
			if sec.HasTime() {
				fmt.Fprintf(w, "  %s", format.RuleWindow(sec.ParsedTime.Rules()[0]))
			}
			fmt.Fprintf(w, "  %d seats\n", sec.AvailableSeats)
		}
	}
}

func containsSection(secs []*model.Section, id string) bool {
	for _, s := range secs {
		if s.ID == id {
			return true
		}
	}
	return false
}

// suggestSubjects prints near matches for subject qualifiers the catalog
// does not carry.
func suggestSubjects(w io.Writer, parsed query.Parsed, subjects []string) {
	known := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		known[strings.ToLower(s)] = true
	}
	for _, p := range parsed.Pairs {
		if p.Key != query.KeySubject || known[p.Value] {
			continue
		}
		if hints := search.SuggestSubjects(p.Value, subjects, 5); len(hints) > 0 {
			fmt.Fprintf(w, "unknown subject %q, did you mean: %s\n", p.Value, strings.Join(hints, ", "))
		}
	}
}

func splitIDs(raw string) []string {
	out := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
