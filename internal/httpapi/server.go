// Package httpapi implements C9: the single execution route plus the fixed
// protocol routes, mounted on a gorilla/mux router with permissive CORS and
// graceful shutdown. Grounded on the teacher's internal/api/server.go
// (mux.NewRouter + CORS middleware + per-concern HandleFunc registration
// shape) and cmd/api/main.go's http.Server + signal-driven Shutdown
// wiring.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/events"
	"github.com/ghostkernel/tapehost/internal/handlers"
	"github.com/ghostkernel/tapehost/internal/metrics"
	"github.com/ghostkernel/tapehost/internal/middleware"
	"github.com/ghostkernel/tapehost/internal/proxy"
	"github.com/ghostkernel/tapehost/internal/registry"
	"github.com/ghostkernel/tapehost/internal/router"
)

// Server wires the HTTP surface over an already-constructed Host/Router/
// Registry/Proxy set.
type Server struct {
	host        *handlers.Host
	router      *router.Router
	registry    *registry.Registry
	proxy       *proxy.Proxy
	hub         *events.Hub
	metrics     *metrics.Metrics
	rateLimiter *middleware.RateLimiter
	corsOrigins []string
	startedAt   time.Time

	httpServer *http.Server
}

// Config names every collaborator the HTTP surface needs.
type Config struct {
	Host        *handlers.Host
	Router      *router.Router
	Registry    *registry.Registry
	Proxy       *proxy.Proxy
	Hub         *events.Hub
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string

	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// New builds a Server and its mux.Router but does not start listening.
func New(cfg Config) *Server {
	s := &Server{
		host:        cfg.Host,
		router:      cfg.Router,
		registry:    cfg.Registry,
		proxy:       cfg.Proxy,
		hub:         cfg.Hub,
		metrics:     cfg.Metrics,
		rateLimiter: cfg.RateLimiter,
		corsOrigins: cfg.CORSOrigins,
		startedAt:   time.Now(),
	}

	r := mux.NewRouter()
	r.Use(s.corsMiddleware)
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware)
	}

	r.HandleFunc("/run", s.handleRun).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/tapes", s.handleTapeList).Methods(http.MethodGet)
	r.HandleFunc("/tapes/{id}", s.handleTapeGet).Methods(http.MethodGet)
	r.HandleFunc("/tapes/{id}/mount", s.handleTapeMount).Methods(http.MethodPost)
	r.HandleFunc("/tapes/{id}/unmount", s.handleTapeUnmount).Methods(http.MethodPost)
	r.HandleFunc("/tapes/{id}/reload", s.handleTapeReload).Methods(http.MethodPost)
	r.HandleFunc("/proxy/{id}", s.handleProxy).Methods(http.MethodPost)
	r.HandleFunc("/proxy-external/{service}", s.handleProxyExternal).Methods(http.MethodPost)
	r.HandleFunc("/swarm/route", s.handleSwarmRoute).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if s.hub != nil {
		r.HandleFunc("/events", s.hub.HandleWebSocket)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// corsMiddleware applies permissive-by-default CORS headers (spec §4.9:
// "explicitly not a security boundary").
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := "*"
	if len(s.corsOrigins) > 0 {
		origin = s.corsOrigins[0]
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Tape-ID, X-Handler-Name")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// ListenAndServe starts the HTTP server; it blocks until Shutdown is called
// or a fatal error occurs.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: failed to encode response", "error", err)
	}
}

func decodeBody(r *http.Request, v interface{}) *core.HostError {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err.Error() == "EOF" {
			return nil
		}
		return core.NewError(core.ErrBadRequest, "malformed JSON body: "+err.Error(), nil)
	}
	return nil
}
