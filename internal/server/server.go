// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the batch runner over HTTP: spreadsheet upload,
// stop requests, archive and report downloads, run status and history, and
// a Server-Sent Events stream of run events.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/paper-harvester/internal/batch"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

const (
	defaultUploadDir      = "uploads"
	defaultMaxUploadBytes = 32 << 20
	defaultRunsLimit      = 20
)

// RunLister returns recently recorded runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]types.RunSummary, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	harvest   types.HarvestConfig
	cfg       types.ServerConfig
	runner    *batch.Runner
	events    *batch.Broadcaster
	history   RunLister
	publisher batch.Publisher
	log       logrus.FieldLogger
	runCtx    context.Context
}

// Option configures a Server.
type Option func(*Server)

// WithHistory serves GET /runs from lister.
func WithHistory(lister RunLister) Option {
	return func(s *Server) { s.history = lister }
}

// WithPublisher uploads each archive built by GET /download.
func WithPublisher(p batch.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithLogger sets the request and handler logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) { s.log = log }
}

// WithRunContext sets the parent context of runs started by uploads.
// Cancelling it aborts the active run.
func WithRunContext(ctx context.Context) Option {
	return func(s *Server) { s.runCtx = ctx }
}

// New returns a Server for runner. events must be the broadcaster the
// runner emits to.
func New(cfg types.Config, runner *batch.Runner, events *batch.Broadcaster, opts ...Option) *Server {
	s := &Server{
		harvest: cfg.Harvest,
		cfg:     cfg.Server,
		runner:  runner,
		events:  events,
		log:     logrus.StandardLogger(),
		runCtx:  context.Background(),
	}
	if s.cfg.UploadDir == "" {
		s.cfg.UploadDir = defaultUploadDir
	}
	if s.cfg.MaxUploadBytes <= 0 {
		s.cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler for all endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/", s.Index)
	r.Get("/healthz", s.Healthz)
	r.Post("/upload", s.Upload)
	r.Post("/stop", s.Stop)
	r.Get("/download", s.Download)
	r.Get("/report", s.Report)
	r.Get("/status", s.Status)
	r.Get("/runs", s.Runs)
	r.Get("/events", s.Events)

	return r
}
