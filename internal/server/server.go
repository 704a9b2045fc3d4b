package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/amishk599/promptopt/internal/metrics"
	"github.com/amishk599/promptopt/internal/model"
)

// Service is the pipeline the handlers delegate to.
type Service interface {
	Score(ctx context.Context, clientID string, req model.ScoreRequest) (model.ScoreResult, error)
	SuggestNext(ctx context.Context, clientID string, req model.SuggestRequest) (model.SuggestResult, error)
	InferMetadata(ctx context.Context, clientID string, req model.MetadataRequest) (model.MetadataResult, error)
}

// Options configures the HTTP surface.
type Options struct {
	Addr                 string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	ShutdownTimeout      time.Duration
	MaxBodyBytes         int64
	TrustProxy           bool
	AllowedOriginSchemes []string
}

// ServiceName is reported by the health endpoint.
const ServiceName = "prompt-optimizer-api"

// Server serves the prompt optimizer API.
type Server struct {
	opts    Options
	svc     Service
	metrics *metrics.Metrics
	logger  *slog.Logger
	router  *mux.Router
}

// New creates a server and registers its routes. m may be nil.
func New(opts Options, svc Service, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		opts:    opts,
		svc:     svc,
		metrics: m,
		logger:  logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.identify, s.observe)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.NewRoute().Subrouter()
	api.Use(s.originFilter)
	api.HandleFunc("/score", s.handleScore).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/suggest-next", s.handleSuggestNext).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/infer-metadata", s.handleInferMetadata).Methods(http.MethodPost, http.MethodOptions)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, model.NewError(model.KindNotFound, "no such endpoint", nil))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, model.NewError(model.KindMethodNotAllowed, "method not allowed", nil))
	})
	return r
}

// Run listens on opts.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server", "timeout", s.opts.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
