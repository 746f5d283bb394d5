package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// HealthFunc reports the availability of each named dependency.
type HealthFunc func() map[string]bool

// Server exposes /healthz, and optionally /metrics and the static tree, over HTTP.
type Server struct {
	server *http.Server
	mux    *http.ServeMux
	log    *logger.Logger
}

// NewServer creates a server for the metrics in gatherer. gatherer and health
// may be nil; without a gatherer /metrics is not mounted.
func NewServer(addr string, gatherer prometheus.Gatherer, health HealthFunc, log *logger.Logger) *Server {
	mux := http.NewServeMux()
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := map[string]bool{}
		if health != nil {
			status = health()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		encodeErr := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "capabilities": status})
		if encodeErr != nil {
			log.Warn("Failed to write health response: %v", encodeErr)
		}
	})

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		mux: mux,
		log: log,
	}
}

// ServeStatic serves the files under dir at urlPrefix, so the URLs handed out
// for converted audio resolve. Directory listings are not served.
func (s *Server) ServeStatic(urlPrefix, dir string) {
	prefix := "/"
	if trimmed := strings.Trim(urlPrefix, "/"); trimmed != "" {
		prefix = "/" + trimmed + "/"
	}

	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))

	s.mux.Handle(prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)

			return
		}

		files.ServeHTTP(w, r)
	}))

	s.log.Info("Serving %s at %s", dir, prefix)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, listenErr := net.Listen("tcp", s.server.Addr)
	if listenErr != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, listenErr)
	}

	s.log.Info("Metrics server listening on %s", listener.Addr())

	go func() {
		serveErr := s.server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.log.Error("Metrics server stopped: %v", serveErr)
		}
	}()

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownErr := s.server.Shutdown(ctx)
	if shutdownErr != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", shutdownErr)
	}

	return nil
}
