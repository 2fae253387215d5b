package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/altgest/internal/config"
	"github.com/dgallion1/altgest/internal/extract"
	"github.com/dgallion1/altgest/internal/locator"
	"github.com/dgallion1/altgest/internal/pipeline"
	"github.com/dgallion1/altgest/internal/tagcontext"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for altgest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	claude       *extract.ClaudeClient
	scanner      *locator.Scanner
	extractor    tagcontext.Extractor
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, claude *extract.ClaudeClient, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		claude:       claude,
		scanner: locator.NewScanner(locator.Options{
			MaxInputBytes: cfg.MaxInputBytes,
			Timeout:       cfg.ScanTimeout,
		}),
		extractor: tagcontext.Extractor{Budget: cfg.ContextBudget},
		log:       log,
		cfg:       cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.AltgestAPIKey, s.log))

		r.Post("/api/locate/cursor", s.handleLocateCursor)
		r.Post("/api/locate/range", s.handleLocateRange)
		r.Post("/api/context", s.handleContext)
		r.Post("/api/context/batch", s.handleContextBatch)

		r.Post("/api/jobs", s.handleSubmitJob)
		r.Post("/api/jobs/upload", s.handleUploadJob)
		r.Post("/api/jobs/batch", s.handleBatchUpload)
		r.Get("/api/jobs", s.handleListJobs)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Post("/api/jobs/{jobID}/cancel", s.handleCancelJob)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
