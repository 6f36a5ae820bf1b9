package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"coursefind/internal/feed"
	appLog "coursefind/internal/log"
	"coursefind/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with periodic feed refresh",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		appLog.Info("effective config",
			"listen", a.cfg.Listen,
			"timezone", a.loc.String(),
			"term", a.term.String(),
			"database", a.cfg.DatabasePath,
			"refresh", a.cfg.RefreshCron,
			"feeds", len(a.cfg.Feeds),
			"courses", len(a.catalog.Current().Courses),
		)

		var syncer web.Syncer
		sched := cron.New()
		if len(a.cfg.Feeds) > 0 {
			s := a.syncer()
			syncer = s
			if syncNow, _ := cmd.Flags().GetBool("sync"); syncNow {
				go refresh(ctx, a, s)
			}
			if a.cfg.RefreshCron != "" {
				if _, err := sched.AddFunc(a.cfg.RefreshCron, func() { refresh(ctx, a, s) }); err != nil {
					return fmt.Errorf("refresh schedule %q: %w", a.cfg.RefreshCron, err)
				}
			}
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()

		a.engine.RebuildAsync(a.catalog.Current())
		return web.NewServer(a.cfg, a.catalog, a.engine, a.baskets, syncer).ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides config if set)")
	serveCmd.Flags().Bool("sync", true, "sync the feeds once at startup")
	rootCmd.AddCommand(serveCmd)
}

// refresh syncs the feeds and warms the search indexes for the new snapshot.
func refresh(ctx context.Context, a *app, s *feed.Syncer) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Sync(ctx, a.cfg.Feeds); err != nil {
		appLog.Error("scheduled refresh failed", err)
		return
	}
	a.engine.RebuildAsync(a.catalog.Current())
}
