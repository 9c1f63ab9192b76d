package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cellqc/internal/analysis"
	"cellqc/internal/logging"
	"cellqc/ports"
)

// Options configures the HTTP surface
type Options struct {
	// MaxBodyBytes caps request bodies, including uploads.
	MaxBodyBytes int64
}

// Server exposes the analyzer over HTTP
type Server struct {
	router   *chi.Mux
	analyzer *analysis.Analyzer
	reports  ports.ReportRepository
	reader   ports.SeriesReader
	opts     Options
	logger   *slog.Logger
}

// NewServer wires the routes. reports and reader may be nil; the routes
// that need them then answer 503.
func NewServer(analyzer *analysis.Analyzer, reports ports.ReportRepository, reader ports.SeriesReader, opts Options, logger *slog.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	s := &Server{
		router:   chi.NewRouter(),
		analyzer: analyzer,
		reports:  reports,
		reader:   reader,
		opts:     opts,
		logger:   logging.Component(logger, "api"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/config", s.handleConfig)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/analyze/upload", s.handleAnalyzeUpload)

		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{id}", s.handleGetReport)
		r.Get("/reports/{id}/batches", s.handleListBatches)
	})
}

// requestLogger logs one line per request at the end of it
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
