package api

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/weftworks/weft/internal/dispatch"
	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/infra/metrics"
)

// handleRoot serves the hello endpoint. Even this trivial request goes
// through the dispatcher, so a blocked loop is visible here too.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log.Printf("[api] GET / handled by worker id: %d", s.workerID)

	t, err := s.dispatcher.Submit(func(tc *dispatch.TaskContext) (any, error) {
		return map[string]any{
			"message":   "Hello World",
			"worker_id": s.workerID,
		}, nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err := t.Wait(r.Context()); err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	result, taskErr := t.Result()
	if taskErr != nil {
		writeError(w, http.StatusInternalServerError, taskErr.Error())
		return
	}

	s.record("/")
	metrics.RequestsTotal.WithLabelValues("/", "").Inc()
	metrics.RequestLatency.WithLabelValues("/").Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, result)
}

// delayResponse is the /delay payload, matching the demo page's contract.
type delayResponse struct {
	Message   string `json:"message"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	WorkerID  int    `json:"worker_id"`
}

// handleDelay waits out the configured delay using the selected strategy:
//
//	async   — suspend on a dispatcher timer (loop keeps serving)
//	block   — inline sleep on the loop (every other request stalls)
//	offload — blocking sleep on a pool worker (loop keeps serving)
//
// The mode comes from config and can be overridden per request with
// ?mode=; ?seconds= overrides the delay duration.
func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	reqStart := time.Now()

	mode := s.defaultMode
	if q := r.URL.Query().Get("mode"); q != "" {
		m, ok := domain.ParseDelayMode(q)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q (want async, block, or offload)", q))
			return
		}
		mode = m
	}

	delay := s.delay
	if q := r.URL.Query().Get("seconds"); q != "" {
		secs, err := strconv.ParseFloat(q, 64)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid seconds %q", q))
			return
		}
		delay = time.Duration(secs * float64(time.Second))
	}

	log.Printf("[api] POST /delay (mode=%s) handled by worker id: %d", mode, s.workerID)

	t, err := s.dispatcher.Submit(func(tc *dispatch.TaskContext) (any, error) {
		startTime := time.Now().Format(tsLayout)

		switch mode {
		case domain.ModeAsync:
			tc.Sleep(delay)
		case domain.ModeBlock:
			// Inline blocking call: holds the dispatcher loop for the
			// full delay. Kept on purpose — this is the demo.
			time.Sleep(delay)
		case domain.ModeOffload:
			if _, err := tc.Offload(func() (any, error) {
				time.Sleep(delay)
				return nil, nil
			}); err != nil {
				return nil, err
			}
		}

		return delayResponse{
			Message:   fmt.Sprintf("Response after %g seconds delay", delay.Seconds()),
			StartTime: startTime,
			EndTime:   time.Now().Format(tsLayout),
			WorkerID:  s.workerID,
		}, nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err := t.Wait(r.Context()); err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	result, taskErr := t.Result()
	if taskErr != nil {
		writeError(w, http.StatusInternalServerError, taskErr.Error())
		return
	}

	s.record("/delay")
	metrics.RequestsTotal.WithLabelValues("/delay", string(mode)).Inc()
	metrics.RequestLatency.WithLabelValues("/delay").Observe(time.Since(reqStart).Seconds())
	writeJSON(w, http.StatusOK, result)
}

// handleUI serves the static demo page.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	dir := findWebDir()
	if dir == "" {
		writeError(w, http.StatusNotFound, "demo page not found")
		return
	}
	s.record("/ui")
	http.ServeFile(w, r, filepath.Join(dir, "index.html"))
}

// handleStats reports this worker's dispatcher and pool counters plus the
// cross-process tallies from the shared ledger.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"worker_id":  s.workerID,
		"dispatcher": s.dispatcher.Stats(),
	}
	if s.pool != nil {
		resp["offload"] = s.pool.Stats()
	}
	if s.ledger != nil {
		counts, err := s.ledger.Counts()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		distinct, err := s.ledger.DistinctWorkers()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["workers"] = counts
		resp["distinct_workers"] = distinct
	}
	writeJSON(w, http.StatusOK, resp)
}

// record appends one request to the shared ledger. Accounting failures are
// logged, never surfaced to the caller.
func (s *Server) record(route string) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Record(s.workerID, route); err != nil {
		log.Printf("[api] ledger record failed: %v", err)
	}
}
