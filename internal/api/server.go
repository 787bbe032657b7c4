// Package api is the HTTP ingress: webhook intake, health, metrics, task
// introspection, and live output streaming.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jordanhubbard/relay/internal/activity"
	"github.com/jordanhubbard/relay/internal/queue"
	"github.com/jordanhubbard/relay/internal/webhook"
	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

// Server wires the ingress routes to the webhook registry and the queue.
type Server struct {
	cfg      config.ServerConfig
	queue    queue.TaskQueue
	activity *activity.Store // nil when Postgres is not configured
	stream   *StreamHub

	mu       sync.RWMutex
	registry *webhook.Registry

	onQueued func(task *models.QueuedTask)

	httpServer *http.Server
}

// NewServer builds the ingress server. activity may be nil; stream must
// not be.
func NewServer(cfg config.ServerConfig, registry *webhook.Registry, q queue.TaskQueue, act *activity.Store, stream *StreamHub) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		queue:    q,
		activity: act,
		stream:   stream,
	}
}

// SetOnQueued registers a hook invoked after each successful enqueue.
func (s *Server) SetOnQueued(fn func(task *models.QueuedTask)) { s.onQueued = fn }

// SwapRegistry installs a new handler registry, used by config hot reload
// to rotate secrets and the command allow-list without a restart.
func (s *Server) SwapRegistry(r *webhook.Registry) {
	s.mu.Lock()
	s.registry = r
	s.mu.Unlock()
	log.Printf("[API] webhook registry swapped")
}

func (s *Server) currentRegistry() *webhook.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// SetupRoutes configures the HTTP routes and middleware.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/webhooks/", s.handleWebhook)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/queue", s.handleQueueStatus)
	mux.HandleFunc("/api/v1/tasks/", s.handleTaskActivity)
	mux.HandleFunc("/api/v1/stream/", s.stream.handleStream)
	mux.Handle("/metrics", promhttp.Handler())

	handler := s.loggingMiddleware(mux)
	return otelhttp.NewHandler(handler, "ingress")
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTPPort),
		Handler:      s.SetupRoutes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] listening on %s", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] failed to write response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[API] %s %s (%v)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}
