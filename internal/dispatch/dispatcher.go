// Package dispatch implements a single-goroutine cooperative scheduler for
// request tasks.
//
// Concurrency here is interleaving, not parallelism: the loop resumes one
// ready task at a time and blocks until that task yields — by suspending at
// a declared wait point or by finishing. A task body that blocks inline
// (time.Sleep, synchronous I/O) therefore stalls every other task. That is
// the trade-off this harness exists to demonstrate, so the loop makes no
// attempt to defend against it.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/infra/metrics"
	"github.com/weftworks/weft/internal/offload"
)

// Dispatcher runs tasks concurrently on one goroutine via cooperative
// suspension. Timers and offload completions are the only wake sources.
type Dispatcher struct {
	pool *offload.Pool

	submitCh chan *Task
	wakeCh   chan *Task
	stopped  chan struct{}

	mu     sync.Mutex
	closed bool
	tasks  map[*Task]struct{} // every non-terminal task, swept at shutdown

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64
}

// New creates a Dispatcher. The pool may be nil if no task ever offloads.
func New(pool *offload.Pool) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		submitCh: make(chan *Task, 128),
		wakeCh:   make(chan *Task, 128),
		stopped:  make(chan struct{}),
		tasks:    make(map[*Task]struct{}),
	}
}

// Submit enqueues a new task in Pending state and returns immediately.
func (d *Dispatcher) Submit(fn Fn) (*Task, error) {
	t := newTask(fn)

	// Registration shares the critical section with the closed check:
	// either the shutdown sweep sees this task, or this call sees closed.
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, domain.ErrDispatcherClosed
	}
	d.tasks[t] = struct{}{}
	d.mu.Unlock()

	d.submitted.Add(1)
	d.active.Add(1)
	metrics.TasksActive.Inc()

	select {
	case d.submitCh <- t:
	case <-d.stopped:
		// The sweep has already sealed t (it was registered above).
		return nil, domain.ErrDispatcherClosed
	}
	return t, nil
}

// Run is the dispatcher loop. It blocks until ctx is cancelled. Resumption
// order is whichever suspended condition becomes ready first, not FIFO of
// arrival.
func (d *Dispatcher) Run(ctx context.Context) {
	// On exit, fail every task that never reached a terminal state —
	// pending in the channels or parked at a suspension point — so no
	// caller is left waiting on a Done that will never close. Their task
	// goroutines are abandoned; the process is going down with them.
	defer func() {
		d.mu.Lock()
		d.closed = true
		leftover := make([]*Task, 0, len(d.tasks))
		for t := range d.tasks {
			leftover = append(leftover, t)
		}
		d.tasks = make(map[*Task]struct{})
		d.mu.Unlock()

		for _, t := range leftover {
			d.seal(t, nil, domain.ErrDispatcherClosed)
		}
		close(d.stopped)
	}()

	var ready []*Task
	for {
		if len(ready) == 0 {
			select {
			case <-ctx.Done():
				return
			case t := <-d.submitCh:
				ready = append(ready, t)
			case t := <-d.wakeCh:
				ready = append(ready, t)
			}
		}

		// Pick up anything else that became ready in the meantime.
		for {
			select {
			case t := <-d.submitCh:
				ready = append(ready, t)
				continue
			case t := <-d.wakeCh:
				ready = append(ready, t)
				continue
			default:
			}
			break
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		t := ready[0]
		ready = ready[1:]
		d.step(t)
	}
}

// step resumes one task and blocks until it yields. This is the single
// point where task code executes.
func (d *Dispatcher) step(t *Task) {
	t.setState(domain.TaskRunning)

	if !t.started {
		t.started = true
		t.mu.Lock()
		t.startedAt = time.Now()
		t.mu.Unlock()

		go func() {
			defer func() {
				if r := recover(); r != nil {
					t.yield <- yieldMsg{kind: yieldDone, err: fmt.Errorf("%w: %v", domain.ErrTaskPanicked, r)}
				}
			}()
			result, err := t.fn(&TaskContext{d: d, t: t})
			t.yield <- yieldMsg{kind: yieldDone, result: result, err: err}
		}()
	} else {
		t.resume <- struct{}{}
	}

	start := time.Now()
	y := <-t.yield
	metrics.TaskResumeSeconds.Observe(time.Since(start).Seconds())

	switch y.kind {
	case yieldSuspend:
		t.setState(domain.TaskSuspended)
		if y.arm != nil {
			y.arm()
		}
	case yieldDone:
		d.finish(t, y.result, y.err)
	}
}

// finish deregisters a task and moves it to its terminal state.
func (d *Dispatcher) finish(t *Task, result any, err error) {
	d.mu.Lock()
	delete(d.tasks, t)
	d.mu.Unlock()
	d.seal(t, result, err)
}

// seal writes the terminal state and transfers result ownership to the
// caller. Called exactly once per task: from finish on the loop goroutine,
// or from the shutdown sweep after the task has left the registry. The
// state write bypasses setState because the sweep force-fails tasks from
// any state, including Pending and Suspended.
func (d *Dispatcher) seal(t *Task, result any, err error) {
	t.mu.Lock()
	t.result = result
	t.err = err
	t.completedAt = time.Now()
	if err != nil {
		t.state = domain.TaskFailed
	} else {
		t.state = domain.TaskCompleted
	}
	t.mu.Unlock()
	close(t.done)

	d.active.Add(-1)
	metrics.TasksActive.Dec()
	if err != nil {
		d.failed.Add(1)
		metrics.TasksCompleted.WithLabelValues(string(domain.TaskFailed)).Inc()
		log.Printf("[dispatch] task %s failed: %v", t.id, err)
	} else {
		d.completed.Add(1)
		metrics.TasksCompleted.WithLabelValues(string(domain.TaskCompleted)).Inc()
	}
}

// wake marks a suspended task ready. Safe to call from timer goroutines and
// pool workers; it is the only cross-thread path into the loop.
func (d *Dispatcher) wake(t *Task) {
	select {
	case d.wakeCh <- t:
	case <-d.stopped:
	}
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Active    int64 `json:"active"`
}

// Stats returns current dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Active:    d.active.Load(),
	}
}
