package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/weftworks/weft/internal/dispatch"
	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/infra/ledger"
	"github.com/weftworks/weft/internal/offload"
)

// newTestServer wires a real dispatcher, pool, and ledger behind httptest.
func newTestServer(t *testing.T, mode domain.DelayMode, delay time.Duration) *httptest.Server {
	t.Helper()

	pool := offload.NewPool(4)
	t.Cleanup(pool.Close)

	d := dispatch.New(pool)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)

	db, err := ledger.Open(t.TempDir())
	if err != nil {
		t.Fatalf("ledger.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := NewServer(d, pool, db, delay, mode)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp
}

func postJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s error: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t, domain.ModeAsync, 10*time.Millisecond)

	var body struct {
		Message  string `json:"message"`
		WorkerID int    `json:"worker_id"`
	}
	resp := getJSON(t, ts.URL+"/", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Message != "Hello World" {
		t.Errorf("message = %q, want %q", body.Message, "Hello World")
	}
	if body.WorkerID != os.Getpid() {
		t.Errorf("worker_id = %d, want %d", body.WorkerID, os.Getpid())
	}
}

func TestDelay_PayloadAndTimestamps(t *testing.T) {
	ts := newTestServer(t, domain.ModeAsync, 50*time.Millisecond)

	var body delayResponse
	resp := postJSON(t, ts.URL+"/delay", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Message != "Response after 0.05 seconds delay" {
		t.Errorf("message = %q", body.Message)
	}
	if body.WorkerID != os.Getpid() {
		t.Errorf("worker_id = %d, want %d", body.WorkerID, os.Getpid())
	}

	start, err := time.Parse(tsLayout, body.StartTime)
	if err != nil {
		t.Fatalf("start_time %q not in layout %q: %v", body.StartTime, tsLayout, err)
	}
	end, err := time.Parse(tsLayout, body.EndTime)
	if err != nil {
		t.Fatalf("end_time %q not in layout %q: %v", body.EndTime, tsLayout, err)
	}
	if gap := end.Sub(start); gap < 50*time.Millisecond {
		t.Errorf("end - start = %v, want >= 50ms", gap)
	}
}

func TestDelay_RejectsUnknownMode(t *testing.T) {
	ts := newTestServer(t, domain.ModeAsync, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/delay?mode=threads", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDelay_SecondsOverride(t *testing.T) {
	ts := newTestServer(t, domain.ModeAsync, time.Hour) // config delay must be ignored

	start := time.Now()
	var body delayResponse
	postJSON(t, ts.URL+"/delay?seconds=0.05", &body)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, want ~50ms (override ignored?)", elapsed)
	}
	if body.Message != "Response after 0.05 seconds delay" {
		t.Errorf("message = %q", body.Message)
	}
}

// With the async mode a slow /delay must not stall /.
func TestDelay_AsyncKeepsRootResponsive(t *testing.T) {
	ts := newTestServer(t, domain.ModeAsync, 300*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var body delayResponse
		postJSON(t, ts.URL+"/delay", &body)
	}()

	time.Sleep(50 * time.Millisecond) // let the delay task suspend

	start := time.Now()
	var body struct{}
	getJSON(t, ts.URL+"/", &body)
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("GET / took %v during async delay, want fast", elapsed)
	}
	<-done
}

// With the block mode the inline sleep holds the dispatcher loop, so / is
// stuck behind it. The anti-pattern must stay observable.
func TestDelay_BlockStallsRoot(t *testing.T) {
	ts := newTestServer(t, domain.ModeBlock, 300*time.Millisecond)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		var body delayResponse
		postJSON(t, ts.URL+"/delay", &body)
	}()

	<-started
	time.Sleep(50 * time.Millisecond) // let the blocking task grab the loop

	start := time.Now()
	var body struct{}
	getJSON(t, ts.URL+"/", &body)
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("GET / took %v during blocking delay, want stalled until the sleep returns", elapsed)
	}
	<-done
}

// Offload mode keeps the loop free even though the sleep itself blocks.
func TestDelay_OffloadKeepsRootResponsive(t *testing.T) {
	ts := newTestServer(t, domain.ModeOffload, 300*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var body delayResponse
		postJSON(t, ts.URL+"/delay", &body)
	}()

	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	var body struct{}
	getJSON(t, ts.URL+"/", &body)
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("GET / took %v during offloaded delay, want fast", elapsed)
	}
	<-done
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, domain.ModeAsync, 10*time.Millisecond)

	var root struct{}
	getJSON(t, ts.URL+"/", &root)

	var stats struct {
		WorkerID   int `json:"worker_id"`
		Dispatcher struct {
			Submitted int64 `json:"submitted"`
		} `json:"dispatcher"`
		DistinctWorkers int `json:"distinct_workers"`
	}
	resp := getJSON(t, ts.URL+"/api/stats", &stats)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if stats.WorkerID != os.Getpid() {
		t.Errorf("worker_id = %d, want %d", stats.WorkerID, os.Getpid())
	}
	if stats.Dispatcher.Submitted < 1 {
		t.Errorf("dispatcher.submitted = %d, want >= 1", stats.Dispatcher.Submitted)
	}
	if stats.DistinctWorkers != 1 {
		t.Errorf("distinct_workers = %d, want 1", stats.DistinctWorkers)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, domain.ModeAsync, 10*time.Millisecond)

	var body map[string]string
	resp := getJSON(t, ts.URL+"/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}
