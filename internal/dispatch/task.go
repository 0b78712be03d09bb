package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weftworks/weft/internal/domain"
)

// Fn is a task body. It runs only while the dispatcher has handed the task
// the loop; calls on the TaskContext are its suspension points.
type Fn func(tc *TaskContext) (any, error)

type yieldKind int

const (
	yieldSuspend yieldKind = iota
	yieldDone
)

// yieldMsg is the task→dispatcher half of the handoff. arm is executed on
// the dispatcher goroutine after the task is marked Suspended, so wake
// sources are never armed while the task still counts as running.
type yieldMsg struct {
	kind   yieldKind
	arm    func()
	result any
	err    error
}

// Task is one in-flight unit of request work. The dispatcher owns it until
// a terminal state; callers observe it through Done/Result/Info.
type Task struct {
	id        string
	fn        Fn
	arrivedAt time.Time

	// resume and yield pass the run token back and forth. Exactly one
	// side is ever unblocked: the dispatcher waits on yield while the
	// task runs, the task waits on resume while suspended.
	resume chan struct{}
	yield  chan yieldMsg
	done   chan struct{}

	started bool // loop-local, dispatcher goroutine only

	mu          sync.Mutex
	state       domain.TaskState
	startedAt   time.Time
	completedAt time.Time
	result      any
	err         error
}

func newTask(fn Fn) *Task {
	return &Task{
		id:        "task-" + uuid.New().String()[:8],
		fn:        fn,
		arrivedAt: time.Now(),
		resume:    make(chan struct{}),
		yield:     make(chan yieldMsg),
		done:      make(chan struct{}),
		state:     domain.TaskPending,
	}
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// Done is closed once the task reaches Completed or Failed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task is terminal or the context expires.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the task outcome. Valid only after Done is closed.
func (t *Task) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// State returns the current lifecycle state.
func (t *Task) State() domain.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Info returns an observable snapshot of the task.
func (t *Task) Info() domain.TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := domain.TaskInfo{
		ID:          t.id,
		State:       t.state,
		ArrivedAt:   t.arrivedAt,
		StartedAt:   t.startedAt,
		CompletedAt: t.completedAt,
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	return info
}

// setState performs a lifecycle transition. Called only from the
// dispatcher goroutine; the mutex exists for snapshot readers. An illegal
// transition is a dispatcher bug, not a recoverable condition.
func (t *Task) setState(s domain.TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !domain.ValidTransition(t.state, s) {
		panic(fmt.Sprintf("dispatch: task %s: illegal transition %s -> %s", t.id, t.state, s))
	}
	t.state = s
}
