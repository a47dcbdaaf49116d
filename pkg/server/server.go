// Package server exposes the PromptForge operations as a JSON HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/perbu/promptforge/pkg/config"
	"github.com/perbu/promptforge/pkg/forge"
	"github.com/perbu/promptforge/pkg/judge"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Engine is the set of single-stage operations the API serves.
type Engine interface {
	RetrieveRelevantExamples(ctx context.Context, query string, k int) []string
	// RefineOrOriginal returns userPrompt and the cause when refinement
	// fails.
	RefineOrOriginal(ctx context.Context, userPrompt, strategyInstruction, examples string) (string, error)
	LLMResponse(ctx context.Context, prompt string) string
	EvaluateOutputs(ctx context.Context, original, refined, userPrompt string) judge.Scores
}

// Runner executes a full pipeline run.
type Runner interface {
	Run(ctx context.Context, in forge.Input, history *forge.History) (*forge.Run, error)
}

type Server struct {
	cfg      config.ServerConfig
	router   *chi.Mux
	server   *http.Server
	sessions *Sessions
	logger   *zap.Logger
}

func NewServer(eng Engine, runner Runner, cfg config.ServerConfig, defaultK int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		sessions: NewSessions(cfg.SessionTTL, cfg.MaxSessions, logger),
		logger:   logger,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(Logger(logger))

	h := &handlers{eng: eng, runner: runner, sessions: s.sessions, defaultK: defaultK, logger: logger}
	s.router.Get("/healthz", h.Health)
	s.router.Get("/strategies", h.Strategies)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(Session)
		r.Post("/retrieve", h.Retrieve)
		r.Post("/refine", h.Refine)
		r.Post("/generate", h.Generate)
		r.Post("/evaluate", h.Evaluate)
		r.Post("/forge", h.Forge)
		r.Get("/history", h.History)
	})
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address. It returns http.ErrServerClosed
// after Stop.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
