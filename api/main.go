package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/noise-to-signal/internal/config"
	"github.com/DeafMist/noise-to-signal/internal/dedupe"
	"github.com/DeafMist/noise-to-signal/internal/document"
	"github.com/DeafMist/noise-to-signal/internal/elasticsearch"
	"github.com/DeafMist/noise-to-signal/internal/logger"
	"github.com/DeafMist/noise-to-signal/internal/models"
	"github.com/DeafMist/noise-to-signal/internal/processing"
	"github.com/DeafMist/noise-to-signal/internal/render"
	"github.com/DeafMist/noise-to-signal/internal/summarize"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	analyzer, err := processing.FromPipeline(&cfg.Pipeline)
	if err != nil {
		log.Error("init analyzer", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	indexCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = esClient.EnsureIndex(indexCtx)
	cancel()
	if err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	srv := newServer(log, cfg, esClient, analyzer, newSummarizer(log))

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// newSummarizer returns nil when no Anthropic key is configured; pages are
// then rendered without an explanation.
func newSummarizer(log *slog.Logger) *summarize.Service {
	cfg, err := config.LoadSummarizer()
	if err != nil {
		log.Warn("summaries disabled", slog.Any("err", err))
		return nil
	}
	gen, err := summarize.NewAnthropicGenerator(cfg)
	if err != nil {
		log.Info("summaries disabled", slog.Any("err", err))
		return nil
	}
	return summarize.NewService(gen, log)
}

type analysisIndex interface {
	IndexAnalysis(ctx context.Context, analysis models.Analysis) error
	GetAnalysis(ctx context.Context, id string) (*models.Analysis, error)
	SearchAnalyses(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type server struct {
	log        *slog.Logger
	cfg        *config.API
	index      analysisIndex
	analyzer   *processing.Analyzer
	summarizer *summarize.Service
	cache      *dedupe.Cache[models.Analysis]
	now        func() time.Time
}

func newServer(log *slog.Logger, cfg *config.API, index analysisIndex, analyzer *processing.Analyzer, summarizer *summarize.Service) *server {
	return &server{
		log:        log,
		cfg:        cfg,
		index:      index,
		analyzer:   analyzer,
		summarizer: summarizer,
		cache:      dedupe.NewCache[models.Analysis](cfg.CacheCapacity, cfg.CacheTTL),
		now:        time.Now,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/documents", s.handleDocument)
	r.Post("/analyze", s.handleAnalyze)
	r.Get("/analyses", s.handleSearch)
	r.Get("/analyses/{id}", s.handleGet)
	r.Get("/analyses/{id}/view", s.handleView)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type documentRequest struct {
	Text  string `json:"text"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.index.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": models.AnalysisVersion})
}

// handleDocument wraps plain text, or a JSON {text,title,url} body, into a
// document:v1 record.
func (s *server) handleDocument(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var req documentRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
	} else {
		req.Text = string(body)
	}

	doc, err := document.New(req.Text, req.Title, req.URL, s.now())
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Field: "text"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	doc, err := processing.DecodeDocument(body)
	if err != nil {
		writeValidation(w, err)
		return
	}

	key := processing.Digest(doc.Content.Text)
	if cached, ok := s.cache.Get(key); ok {
		s.log.Debug("analysis cache hit", slog.String("hash", key))
		writeJSON(w, http.StatusOK, rebindMeta(cached, doc))
		return
	}

	analysis, err := s.analyzer.Analyze(doc)
	if err != nil {
		writeValidation(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.index.IndexAnalysis(ctx, analysis); err != nil {
		// The caller still gets its analysis; the next request retries indexing.
		s.log.Warn("index analysis", slog.String("hash", analysis.Hash), slog.Any("err", err))
	} else {
		s.cache.MarkSeen(key, analysis)
	}

	writeJSON(w, http.StatusOK, analysis)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:    strings.TrimSpace(q.Get("q")),
		Keywords: parseCSV(q.Get("keywords")),
		Tickers:  parseCSV(q.Get("tickers")),
		Entity:   strings.TrimSpace(q.Get("entity")),
		From:     clampInt(q.Get("from"), 0, 10_000),
		Size:     clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Start:    parseTime(q.Get("start")),
		End:      parseTime(q.Get("end")),
	}

	result, err := s.index.SearchAnalyses(ctx, params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	analysis, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleView renders the analysis page. With ?tier= set and a summarizer
// configured, the page also carries a generated explanation.
func (s *server) handleView(w http.ResponseWriter, r *http.Request) {
	analysis, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var summary string
	if tier := r.URL.Query().Get("tier"); tier != "" && s.summarizer != nil {
		opts := summarize.Options{Tier: tier, Format: "html", Length: r.URL.Query().Get("length")}
		out, err := s.summarizer.Summarize(r.Context(), *analysis, opts)
		if err != nil {
			s.log.Warn("summarize", slog.String("hash", analysis.Hash), slog.Any("err", err))
		} else {
			summary = out
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.Page(w, *analysis, summary); err != nil {
		s.log.Error("render page", slog.Any("err", err))
	}
}

func (s *server) lookup(w http.ResponseWriter, r *http.Request) (*models.Analysis, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := strings.TrimPrefix(chi.URLParam(r, "id"), models.HashPrefix)
	analysis, err := s.index.GetAnalysis(ctx, id)
	switch {
	case errors.Is(err, elasticsearch.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return nil, false
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return nil, false
	}
	return analysis, true
}

func (s *server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read body"})
		return nil, false
	}
	return body, true
}

// rebindMeta points a memoized analysis at the source metadata of the
// current request. Content fields depend only on the text and stay as cached.
func rebindMeta(a models.Analysis, doc models.Document) models.Analysis {
	a.Meta.Title = doc.Meta.Title
	a.Meta.URL = doc.Meta.URL
	a.Meta.SourceCreatedAt = nil
	if doc.Meta.CreatedAt != "" {
		createdAt := doc.Meta.CreatedAt
		a.Meta.SourceCreatedAt = &createdAt
	}
	return a
}

func writeValidation(w http.ResponseWriter, err error) {
	var verr *processing.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Field: verr.Field})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
