package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"coursefind/internal/basket"
	"coursefind/internal/catalog"
	"coursefind/internal/config"
	"coursefind/internal/feed"
	appLog "coursefind/internal/log"
	"coursefind/internal/model"
	"coursefind/internal/search"
)

const (
	defaultConfigPath = "./coursefind.yaml"
	configEnv         = "COURSEFIND_CONFIG"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "coursefind",
	Short:         "coursefind searches a course catalog and checks schedule conflicts",
	Long:          "coursefind keeps a term's course catalog in SQLite, searches it with qualifiers and fuzzy text, and filters sections against a basket of planned classes",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		path := configFile
		if env := os.Getenv(configEnv); env != "" && !cmd.Flags().Changed("config") {
			path = env
		}
		c, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		appLog.SetLevel(appLog.ParseLevel(c.LogLevel))
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfigPath, "path to config file (or set "+configEnv+")")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "coursefind:", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// app is the set of services a command works against.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	term    model.Term
	store   *catalog.Store
	catalog *catalog.Catalog
	engine  *search.Engine
	baskets *basket.Service
}

// openApp opens the store and loads the configured term's snapshot.
func openApp(ctx context.Context) (*app, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	loc, err := cfg.Location()
	if err != nil {
		appLog.Warn("falling back to local timezone", "timezone", cfg.Timezone, "error", err)
	}
	term, err := cfg.CatalogTerm()
	if err != nil {
		return nil, err
	}
	st, err := catalog.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	cat := catalog.New(loc)
	if _, err := cat.Reload(ctx, st, term); err != nil {
		_ = st.Close()
		return nil, err
	}
	return &app{
		cfg:     cfg,
		loc:     loc,
		term:    term,
		store:   st,
		catalog: cat,
		engine:  search.NewEngine(),
		baskets: basket.NewService(st, cat, term),
	}, nil
}

func (a *app) syncer() *feed.Syncer {
	return feed.NewSyncer(feed.NewFetcher(a.cfg.CacheDir), a.store, a.catalog, a.term, a.loc)
}

func (a *app) Close() error {
	return a.store.Close()
}
