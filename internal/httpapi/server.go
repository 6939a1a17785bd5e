package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/config"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/health"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/orchestrator"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/store"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/streaming"
)

// Server wires the REST handlers, websocket stream, health probes and
// metrics into one http.Server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, st *store.Store, orch *orchestrator.Orchestrator, hub *streaming.Hub, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	NewTaskHandler(st, orch, hub, logger).RegisterRoutes(mux)
	NewMessageHandler(st, orch, logger).RegisterRoutes(mux)
	NewStreamHandler(hub, orch, cfg.Streaming, logger).RegisterRoutes(mux)

	hm := health.NewManager()
	hm.RegisterChecker(health.NewDatabaseChecker(st))
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      withCORS(mux),
			ReadTimeout:  15 * time.Second,
			IdleTimeout:  60 * time.Second,
			// No WriteTimeout: /ws connections are long-lived.
		},
		logger: logger,
	}
}

// Handler exposes the assembled routing stack, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// withCORS allows browser clients from any origin. The service carries
// no credentials, so a permissive policy is acceptable here.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
