package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-tracker/internal/config"
	"github.com/wallet-tracker/internal/logging"
)

// Server is the HTTP server wrapping the API routes
type Server struct {
	httpServer *http.Server
	logger     *logging.Logger
}

// NewServer creates the HTTP server with all routes registered
func NewServer(cfg *config.ServerConfig, handler *Handler, logger *logging.Logger) *Server {
	router := mux.NewRouter()
	router.Use(requestLogging(logger))

	router.HandleFunc("/health", handler.Health).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/portfolio").Subrouter()
	apiRouter.HandleFunc("/sync", handler.TriggerSync).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sync/status", handler.SyncStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/daily", handler.DailySnapshots).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving requests, blocking until shutdown
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogging(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Debug("Request handled")
		})
	}
}
