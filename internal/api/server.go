// Package api provides the HTTP surface of the weft demo server.
// Every request becomes a dispatcher task; the /delay endpoint exposes the
// three waiting strategies (async, block, offload) side by side.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weftworks/weft/internal/dispatch"
	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/infra/ledger"
	"github.com/weftworks/weft/internal/offload"
)

// tsLayout renders timestamps with microsecond precision, e.g.
// "2026-08-24 10:15:42.123456".
const tsLayout = "2006-01-02 15:04:05.000000"

// Server is the weft HTTP server for one worker process.
type Server struct {
	dispatcher *dispatch.Dispatcher
	pool       *offload.Pool
	ledger     *ledger.DB

	workerID       int
	delay          time.Duration
	defaultMode    domain.DelayMode
	metricsEnabled bool
}

// NewServer creates an API server bound to one dispatcher and pool.
// The ledger may be nil when cross-process accounting is disabled.
func NewServer(d *dispatch.Dispatcher, p *offload.Pool, l *ledger.DB, delay time.Duration, mode domain.DelayMode) *Server {
	return &Server{
		dispatcher:  d,
		pool:        p,
		ledger:      l,
		workerID:    os.Getpid(),
		delay:       delay,
		defaultMode: mode,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "weft is running",
			"worker_id": s.workerID,
		})
	})

	r.Get("/", s.handleRoot)
	r.Post("/delay", s.handleDelay)
	r.Get("/ui", s.handleUI)
	r.Get("/api/stats", s.handleStats)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// findWebDir locates the static demo page in various contexts.
func findWebDir() string {
	candidates := []string{
		"web",    // Running from project root
		"../web", // Running from build dir
		filepath.Join(os.Getenv("WEFT_HOME"), "web"),
	}
	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, "index.html")); err == nil {
			return dir
		}
	}
	return ""
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware allows the demo page to call the API from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
