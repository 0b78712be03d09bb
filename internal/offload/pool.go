// Package offload runs blocking operations on a fixed pool of worker
// goroutines so the dispatcher loop stays responsive.
//
// Handoff is producer/consumer in both directions: the dispatcher thread
// produces jobs, workers consume them and produce results, and the
// completion callback is the only path a result travels back on. Workers
// never touch task state directly.
package offload

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/infra/metrics"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// Op is a blocking operation. It runs to completion on a worker goroutine;
// whatever it returns (or panics with) is captured into the handle as data.
type Op func() (any, error)

// Handle is the caller's view of a submitted job. Result is valid only
// after Done is closed.
type Handle struct {
	result any
	err    error
	done   chan struct{}
}

// Done is closed exactly once, when the job has been retired.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the captured outcome. Callers must wait on Done first.
func (h *Handle) Result() (any, error) { return h.result, h.err }

type job struct {
	op          Op
	handle      *Handle
	onDone      func(*Handle)
	submittedAt time.Time
}

// Pool is a fixed-size worker pool with an unbounded FIFO pending queue.
// When all workers are busy, submissions queue — never dropped.
type Pool struct {
	mu      sync.Mutex
	pending *queue.Queue
	closed  bool

	work chan *job
	kick chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup

	workers   int
	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates and starts a pool with the given number of workers
// (DefaultWorkers if n <= 0).
func NewPool(n int) *Pool {
	if n <= 0 {
		n = DefaultWorkers
	}
	p := &Pool{
		pending: queue.New(),
		work:    make(chan *job),
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		workers: n,
	}

	p.wg.Add(1)
	go p.feed()
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Workers returns the configured pool size.
func (p *Pool) Workers() int { return p.workers }

// Submit hands a blocking operation to the pool and returns immediately.
// onDone, if non-nil, is invoked on the worker goroutine after the handle
// is sealed — the dispatcher uses it as its wake-up signal.
func (p *Pool) Submit(op Op, onDone func(*Handle)) (*Handle, error) {
	h := &Handle{done: make(chan struct{})}
	j := &job{op: op, handle: h, onDone: onDone, submittedAt: time.Now()}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, domain.ErrPoolClosed
	}
	p.pending.Add(j)
	depth := p.pending.Length()
	p.mu.Unlock()

	p.submitted.Add(1)
	metrics.OffloadQueueDepth.Set(float64(depth))

	// Lossy wake: the feeder drains the whole queue each time it runs,
	// so one buffered token is enough.
	select {
	case p.kick <- struct{}{}:
	default:
	}
	return h, nil
}

// feed moves pending jobs to workers in FIFO order.
func (p *Pool) feed() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case <-p.kick:
		}
		for {
			p.mu.Lock()
			if p.pending.Length() == 0 {
				p.mu.Unlock()
				break
			}
			j := p.pending.Remove().(*job)
			metrics.OffloadQueueDepth.Set(float64(p.pending.Length()))
			p.mu.Unlock()

			select {
			case p.work <- j:
			case <-p.stop:
				p.retire(j, nil, domain.ErrPoolClosed)
				return
			}
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case j := <-p.work:
			p.run(j)
		}
	}
}

// run executes one job, capturing its result, error, or panic into the
// handle. Nothing is ever re-raised across the goroutine boundary.
func (p *Pool) run(j *job) {
	p.active.Add(1)
	metrics.OffloadWaitSeconds.Observe(time.Since(j.submittedAt).Seconds())

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("offload operation panicked: %v", r)
			}
		}()
		result, err = j.op()
	}()

	p.active.Add(-1)
	p.retire(j, result, err)
}

// retire seals the handle and fires the completion signal. Called exactly
// once per job.
func (p *Pool) retire(j *job, result any, err error) {
	j.handle.result = result
	j.handle.err = err
	close(j.handle.done)

	if err != nil {
		p.failed.Add(1)
		metrics.OffloadJobs.WithLabelValues("failed").Inc()
	} else {
		p.completed.Add(1)
		metrics.OffloadJobs.WithLabelValues("completed").Inc()
	}

	if j.onDone != nil {
		j.onDone(j.handle)
	}
}

// Close stops the pool. Jobs already running finish; jobs still queued are
// retired with ErrPoolClosed so no waiter hangs.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)
	p.wg.Wait()

	p.mu.Lock()
	for p.pending.Length() > 0 {
		j := p.pending.Remove().(*job)
		p.retire(j, nil, domain.ErrPoolClosed)
	}
	p.mu.Unlock()
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers    int   `json:"workers"`
	Active     int   `json:"active"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	depth := p.pending.Length()
	p.mu.Unlock()
	return Stats{
		Workers:    p.workers,
		Active:     int(p.active.Load()),
		QueueDepth: depth,
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
	}
}
