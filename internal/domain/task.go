// Package domain holds the request-concurrency core types.
// A Task is one in-flight request: submit → run → (suspend ↔ resume)* → done.
package domain

import "time"

// TaskState tracks the task lifecycle.
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskSuspended TaskState = "SUSPENDED"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
)

// TaskInfo is the observable snapshot of a task.
// The live task object is owned by the dispatcher; this copy is what
// handlers and stats endpoints see.
type TaskInfo struct {
	ID          string    `json:"id"`
	State       TaskState `json:"state"`
	ArrivedAt   time.Time `json:"arrived_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// IsTerminal returns true once the task has reached a final state.
func (t TaskInfo) IsTerminal() bool {
	return t.State == TaskCompleted || t.State == TaskFailed
}

// Duration returns how long the task took from start to finish
// (0 if not started/completed).
func (t TaskInfo) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// ValidTransition reports whether a task may move from one state to another.
// The only legal path is Pending→Running→{Suspended↔Running}*→{Completed|Failed}.
func ValidTransition(from, to TaskState) bool {
	switch from {
	case TaskPending:
		return to == TaskRunning
	case TaskRunning:
		return to == TaskSuspended || to == TaskCompleted || to == TaskFailed
	case TaskSuspended:
		return to == TaskRunning
	default:
		return false
	}
}

// DelayMode selects how POST /delay waits out its delay.
type DelayMode string

const (
	// ModeAsync suspends the task on a dispatcher timer — other tasks
	// keep interleaving while it waits.
	ModeAsync DelayMode = "async"
	// ModeBlock sleeps inline on the dispatcher loop. Every other task
	// stalls until it returns. The anti-pattern, kept on purpose.
	ModeBlock DelayMode = "block"
	// ModeOffload hands the blocking sleep to the offload pool and
	// suspends until a worker signals completion.
	ModeOffload DelayMode = "offload"
)

// ParseDelayMode validates a mode string, returning ok=false for unknown input.
func ParseDelayMode(s string) (DelayMode, bool) {
	switch DelayMode(s) {
	case ModeAsync, ModeBlock, ModeOffload:
		return DelayMode(s), true
	}
	return "", false
}
