package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the configured feeds and replace the term's catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Feeds) == 0 {
			return errors.New("no feeds configured")
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		stats, err := a.syncer().Sync(cmd.Context(), cfg.Feeds)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %s: %d feeds (%d from cache), %d courses, %d sections, %d instructors, version %d\n",
			a.term, stats.Feeds, stats.FromCache, stats.Courses, stats.Sections, stats.Instructors, stats.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
