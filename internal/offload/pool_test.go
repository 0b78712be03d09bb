package offload

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/weftworks/weft/internal/domain"
)

func newTestPool(t *testing.T, n int) *Pool {
	t.Helper()
	p := NewPool(n)
	t.Cleanup(p.Close)
	return p
}

func await(t *testing.T, h *Handle) (any, error) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle never signalled")
	}
	return h.Result()
}

func TestSubmit_ReturnsResult(t *testing.T) {
	p := newTestPool(t, 2)

	h, err := p.Submit(func() (any, error) { return "done", nil }, nil)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	result, opErr := await(t, h)
	if opErr != nil {
		t.Fatalf("Result() error: %v", opErr)
	}
	if result != "done" {
		t.Errorf("Result() = %v, want %q", result, "done")
	}
}

func TestSubmit_ErrorCapturedAsValue(t *testing.T) {
	p := newTestPool(t, 1)
	wantErr := errors.New("operation failed")

	h, err := p.Submit(func() (any, error) { return nil, wantErr }, nil)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if _, opErr := await(t, h); !errors.Is(opErr, wantErr) {
		t.Errorf("Result() error = %v, want %v", opErr, wantErr)
	}
}

func TestSubmit_PanicCapturedAsValue(t *testing.T) {
	p := newTestPool(t, 1)

	h, err := p.Submit(func() (any, error) { panic("worker exploded") }, nil)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	_, opErr := await(t, h)
	if opErr == nil {
		t.Fatal("Result() error = nil, want captured panic")
	}
	if !strings.Contains(opErr.Error(), "worker exploded") {
		t.Errorf("Result() error = %v, want panic message preserved", opErr)
	}
}

// A panicking operation must not take its worker down with it.
func TestWorker_SurvivesPanic(t *testing.T) {
	p := newTestPool(t, 1)

	h1, _ := p.Submit(func() (any, error) { panic("first") }, nil)
	await(t, h1)

	h2, err := p.Submit(func() (any, error) { return "still alive", nil }, nil)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if result, _ := await(t, h2); result != "still alive" {
		t.Errorf("Result() = %v, want %q", result, "still alive")
	}
}

// With one worker, queued jobs execute in submission order.
func TestSaturation_FIFO(t *testing.T) {
	p := newTestPool(t, 1)

	var (
		mu    sync.Mutex
		order []int
	)
	release := make(chan struct{})

	// First job parks the only worker so the rest must queue.
	gate, err := p.Submit(func() (any, error) {
		<-release
		return nil, nil
	}, nil)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	handles := make([]*Handle, 0, 3)
	for i := 1; i <= 3; i++ {
		i := i
		h, err := p.Submit(func() (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}, nil)
		if err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
		handles = append(handles, h)
	}

	if depth := p.Stats().QueueDepth; depth < 2 {
		t.Errorf("QueueDepth = %d, want >= 2 while worker is parked", depth)
	}

	close(release)
	await(t, gate)
	for _, h := range handles {
		await(t, h)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i+1 {
			t.Fatalf("execution order = %v, want [1 2 3]", order)
		}
	}
}

func TestOnDone_FiresAfterHandleSealed(t *testing.T) {
	p := newTestPool(t, 1)

	signalled := make(chan struct{})
	h, err := p.Submit(
		func() (any, error) { return 7, nil },
		func(h *Handle) {
			// The handle must be readable from inside the signal.
			if result, _ := h.Result(); result != 7 {
				t.Errorf("Result() inside onDone = %v, want 7", result)
			}
			close(signalled)
		},
	)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	select {
	case <-signalled:
	case <-time.After(2 * time.Second):
		t.Fatal("onDone never fired")
	}
	await(t, h)
}

func TestSubmit_AfterClose(t *testing.T) {
	p := NewPool(1)
	p.Close()

	if _, err := p.Submit(func() (any, error) { return nil, nil }, nil); !errors.Is(err, domain.ErrPoolClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrPoolClosed", err)
	}
}

func TestStats_Counters(t *testing.T) {
	p := newTestPool(t, 2)

	ok, _ := p.Submit(func() (any, error) { return nil, nil }, nil)
	bad, _ := p.Submit(func() (any, error) { return nil, errors.New("nope") }, nil)
	await(t, ok)
	await(t, bad)

	stats := p.Stats()
	if stats.Workers != 2 {
		t.Errorf("Stats().Workers = %d, want 2", stats.Workers)
	}
	if stats.Submitted != 2 {
		t.Errorf("Stats().Submitted = %d, want 2", stats.Submitted)
	}
	if stats.Completed != 1 {
		t.Errorf("Stats().Completed = %d, want 1", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("Stats().Failed = %d, want 1", stats.Failed)
	}
}
