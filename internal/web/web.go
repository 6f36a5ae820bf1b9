package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursefind/internal/basket"
	"coursefind/internal/catalog"
	"coursefind/internal/config"
	"coursefind/internal/feed"
	"coursefind/internal/format"
	appLog "coursefind/internal/log"
	"coursefind/internal/model"
	"coursefind/internal/query"
	"coursefind/internal/schedule"
	"coursefind/internal/search"
)

// Syncer refreshes the catalog from its feeds.
type Syncer interface {
	Sync(ctx context.Context, feeds []config.FeedConfig) (feed.Stats, error)
}

// Server exposes catalog search and the basket over HTTP.
type Server struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	engine  *search.Engine
	baskets *basket.Service
	syncer  Syncer
	mux     *http.ServeMux
}

// NewServer wires the API. syncer may be nil, which disables /api/refresh.
func NewServer(cfg *config.Config, cat *catalog.Catalog, engine *search.Engine, baskets *basket.Service, syncer Syncer) *Server {
	s := &Server{
		cfg:     cfg,
		catalog: cat,
		engine:  engine,
		baskets: baskets,
		syncer:  syncer,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the API with request logging and, when configured, basic
// auth applied.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		h = s.basicAuthMiddleware(h)
	}
	return requestLogger(h)
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) basicAuthEnabled() bool {
	return s.cfg != nil && s.cfg.BasicAuth != nil &&
		s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="coursefind", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags every request with an ID and logs its outcome.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", time.Since(started).String(),
		)
	})
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/parse", s.handleParse)
	s.mux.HandleFunc("GET /api/conflict", s.handleConflict)
	s.mux.HandleFunc("GET /api/subjects", s.handleSubjects)
	s.mux.HandleFunc("GET /api/basket", s.handleBasket)
	s.mux.HandleFunc("POST /api/basket/sections/{id}", s.handleBasketAdd)
	s.mux.HandleFunc("DELETE /api/basket/sections/{id}", s.handleBasketRemove)
	s.mux.HandleFunc("POST /api/basket/queries", s.handleBasketQuery)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type courseDTO struct {
	model.Course
	Credits string `json:"credits"`
}

type sectionDTO struct {
	*model.Section
	Meets string `json:"meets"`
	Dates string `json:"dates,omitempty"`
}

type resultDTO struct {
	Course           courseDTO    `json:"course"`
	Sections         []sectionDTO `json:"sections"`
	FilteredSections []sectionDTO `json:"filtered_sections"`
	WasFiltered      bool         `json:"was_filtered"`
}

type searchResponse struct {
	Query      string       `json:"query"`
	Qualifiers []query.Pair `json:"qualifiers"`
	Text       string       `json:"text"`
	Version    uint64       `json:"version"`
	Results    []resultDTO  `json:"results"`
}

func newSectionDTOs(secs []*model.Section) []sectionDTO {
	out := make([]sectionDTO, 0, len(secs))
	for _, sec := range secs {
		dto := sectionDTO{Section: sec, Meets: format.Schedule(sec.ParsedTime)}
		if sec.HasTime() {
			dto.Dates = format.RuleWindow(sec.ParsedTime.Rules()[0])
		}
		out = append(out, dto)
	}
	return out
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	snap := s.catalog.Current()

	var sched []*schedule.Schedule
	if raw, ok := r.URL.Query()["basket"]; ok {
		sched = snap.Schedules(splitIDs(strings.Join(raw, ",")))
	} else {
		var err error
		if sched, err = s.baskets.Schedules(r.Context()); err != nil {
			appLog.Error("load basket failed", err)
			writeError(w, http.StatusInternalServerError, "failed to load basket")
			return
		}
	}

	rows, err := s.engine.Search(q, snap, sched)
	if err != nil {
		appLog.Error("search failed", err, "q", q)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	parsed := query.Parse(q)
	resp := searchResponse{
		Query:      q,
		Qualifiers: parsed.Pairs,
		Text:       parsed.Text,
		Version:    snap.Version,
		Results:    make([]resultDTO, 0, len(rows)),
	}
	if resp.Qualifiers == nil {
		resp.Qualifiers = []query.Pair{}
	}
	for _, row := range rows {
		resp.Results = append(resp.Results, resultDTO{
			Course:           courseDTO{Course: row.Course, Credits: format.Credits(row.Course.MinCredits, row.Course.MaxCredits)},
			Sections:         newSectionDTOs(row.Sections),
			FilteredSections: newSectionDTOs(row.FilteredSections),
			WasFiltered:      row.WasFiltered,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	parsed := query.Parse(r.URL.Query().Get("q"))
	if parsed.Pairs == nil {
		parsed.Pairs = []query.Pair{}
	}
	writeJSON(w, http.StatusOK, parsed)
}

func (s *Server) handleConflict(w http.ResponseWriter, r *http.Request) {
	snap := s.catalog.Current()
	aID, bID := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	a, okA := snap.Section(aID)
	b, okB := snap.Section(bID)
	if !okA || !okB {
		writeError(w, http.StatusNotFound, "unknown section")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"a":        aID,
		"b":        bID,
		"conflict": schedule.Conflict(a.ParsedTime, b.ParsedTime),
	})
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 10)
	subjects := search.SuggestSubjects(r.URL.Query().Get("q"), s.catalog.Current().Subjects(), limit)
	if subjects == nil {
		subjects = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subjects": subjects})
}

func (s *Server) handleBasket(w http.ResponseWriter, r *http.Request) {
	v, err := s.baskets.View(r.Context())
	if err != nil {
		appLog.Error("load basket failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load basket")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleBasketAdd(w http.ResponseWriter, r *http.Request) {
	v, err := s.baskets.AddSection(r.Context(), r.PathValue("id"))
	s.writeBasket(w, v, err)
}

func (s *Server) handleBasketRemove(w http.ResponseWriter, r *http.Request) {
	v, err := s.baskets.RemoveSection(r.Context(), r.PathValue("id"))
	s.writeBasket(w, v, err)
}

func (s *Server) handleBasketQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	v, err := s.baskets.SaveQuery(r.Context(), req.Query)
	s.writeBasket(w, v, err)
}

func (s *Server) writeBasket(w http.ResponseWriter, v basket.View, err error) {
	switch {
	case errors.Is(err, basket.ErrUnknownSection):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		appLog.Error("basket update failed", err)
		writeError(w, http.StatusInternalServerError, "failed to update basket")
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh is not configured")
		return
	}
	stats, err := s.syncer.Sync(r.Context(), s.cfg.Feeds)
	if err != nil {
		appLog.Error("refresh failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.engine.RebuildAsync(s.catalog.Current())
	writeJSON(w, http.StatusOK, stats)
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

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
