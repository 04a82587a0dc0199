package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/collectdesk/collectdesk/internal/config"
	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// Server represents the HTTP server
type Server struct {
	addr   string
	logger logger.Logger
	server *http.Server
}

// NewServer creates a new HTTP server. verifier may be nil, in which case
// requests are not authenticated.
func NewServer(cfg *config.Config, service ports.AssignmentService, verifier ports.TokenVerifier, log logger.Logger) *Server {
	addr := cfg.Addr()
	return &Server{
		addr:   addr,
		logger: log,
		server: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(service, verifier, cfg.Assignment.SystemActor, log),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
}

// NewRouter builds the route table with its middleware chain
func NewRouter(service ports.AssignmentService, verifier ports.TokenVerifier, systemActor string, log logger.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(correlationMiddleware)
	router.Use(loggingMiddleware(log))
	router.Use(recoveryMiddleware(log))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, "ok", nil)
	}).Methods("GET")

	api := router.NewRoute().Subrouter()
	if verifier != nil {
		api.Use(authMiddleware(verifier))
	}
	NewAssignmentHandler(service, systemActor).RegisterRoutes(api)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Starting HTTP server", map[string]interface{}{"addr": s.addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}
