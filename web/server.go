// Package web serves the archive over HTTP: QIDO-RS style searches and
// WADO-RS style instance retrieval.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/caio-sobreiro/dicomarc/interfaces"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/retrieve"
)

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAuth requires a bearer token on every request.
func WithAuth(a *Auth) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithRateLimit limits each client IP to n requests per minute.
func WithRateLimit(n int) Option {
	return func(s *Server) {
		s.requestsPerMinute = n
	}
}

// WithCORSOrigins sets the origins allowed to call the archive from a browser.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// Server routes HTTP requests to the search service and the retrieval
// pipeline
type Server struct {
	search   *query.Service
	pipeline *retrieve.Pipeline
	locator  interfaces.InstanceLocator
	caps     interfaces.CapabilityLookup

	auth              *Auth
	requestsPerMinute int
	corsOrigins       []string
	logger            *slog.Logger
}

// NewServer creates a server answering searches with search and retrieving
// instances located by locator through pipeline.
func NewServer(search *query.Service, pipeline *retrieve.Pipeline, locator interfaces.InstanceLocator, caps interfaces.CapabilityLookup, opts ...Option) *Server {
	s := &Server{
		search:   search,
		pipeline: pipeline,
		locator:  locator,
		caps:     caps,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization"},
			ExposedHeaders: []string{"Warning", "X-Request-ID"},
			MaxAge:         300,
		}))
	}
	if s.requestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(s.requestsPerMinute, time.Minute))
	}
	if s.auth != nil {
		r.Use(s.auth.Middleware)
	}

	r.Route("/qido-rs/{aet}", func(r chi.Router) {
		r.Get("/patients", s.qido(levelPatient))
		r.Get("/studies", s.qido(levelStudy))
		r.Get("/series", s.qido(levelSeriesRelational))
		r.Get("/studies/{study}/series", s.qido(levelSeries))
		r.Get("/instances", s.qido(levelInstanceRelational))
		r.Get("/studies/{study}/instances", s.qido(levelInstanceRelational))
		r.Get("/studies/{study}/series/{series}/instances", s.qido(levelInstance))
	})
	r.Get("/wado-rs/{aet}/studies/{study}/series/{series}/instances/{sop}", s.wado)
	return r
}

type loggerKey struct{}

// requestLogger tags each request with a correlation id and logs its
// outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		logger := s.logger.With("request_id", id)
		ctx := context.WithValue(r.Context(), loggerKey{}, logger)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.InfoContext(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
