package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/rs/cors"

	"upframe/internal/config"
	"upframe/internal/deps"
	"upframe/internal/logging"
	"upframe/internal/notifications"
	"upframe/internal/progress"
	"upframe/internal/queue"
)

// WorkflowStatus exposes the manager state the health endpoint reports.
type WorkflowStatus interface {
	Running() bool
	LastError() error
}

// Server is the HTTP gateway for job submission, status, streaming, and
// artifact retrieval.
type Server struct {
	cfg          *config.Config
	store        *queue.Store
	hub          *progress.Hub
	workflow     WorkflowStatus
	notifier     notifications.Service
	requirements []deps.Requirement
	logger       *slog.Logger
	handler      http.Handler

	listener net.Listener
	server   *http.Server
}

// Options configures a Server.
type Options struct {
	Config       *config.Config
	Store        *queue.Store
	Hub          *progress.Hub
	Workflow     WorkflowStatus
	Notifier     notifications.Service
	Requirements []deps.Requirement
	Logger       *slog.Logger
}

// NewServer constructs the gateway but does not start listening.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("api server requires configuration")
	}
	if opts.Store == nil {
		return nil, errors.New("api server requires a job store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config)
	}

	srv := &Server{
		cfg:          opts.Config,
		store:        opts.Store,
		hub:          opts.Hub,
		workflow:     opts.Workflow,
		notifier:     notifier,
		requirements: opts.Requirements,
		logger:       logging.NewComponentLogger(logger, "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", srv.handleJobs)
	mux.HandleFunc("/api/jobs/", srv.handleJobSubtree)
	mux.HandleFunc("/api/health", srv.handleHealth)

	srv.handler = cors.New(cors.Options{
		AllowedOrigins: opts.Config.API.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(mux)

	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler returns the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Paths.APIBind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down and closes the listener.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
