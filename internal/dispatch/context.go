package dispatch

import (
	"time"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/offload"
)

// TaskContext is handed to a task body and provides its suspension points.
// It is valid only for the lifetime of that task and only on the task's
// own goroutine.
type TaskContext struct {
	d *Dispatcher
	t *Task
}

// TaskID returns the identifier of the running task.
func (tc *TaskContext) TaskID() string { return tc.t.id }

// Sleep suspends the task for at least dur without holding the loop. The
// dispatcher arms a timer and keeps interleaving other tasks; the timer
// expiry marks this one ready again.
//
// Contrast with calling time.Sleep inside the body, which never yields and
// stalls every task until it returns.
func (tc *TaskContext) Sleep(dur time.Duration) {
	t := tc.t
	d := tc.d
	tc.yieldAndWait(func() {
		time.AfterFunc(dur, func() { d.wake(t) })
	})
}

// Offload runs a blocking operation on the offload pool and suspends until
// a worker retires it. The operation's error (or captured panic) comes back
// as a value — nothing crosses the thread boundary un-marshalled.
func (tc *TaskContext) Offload(op offload.Op) (any, error) {
	if tc.d.pool == nil {
		return nil, domain.ErrPoolClosed
	}

	t := tc.t
	d := tc.d
	var (
		h      *offload.Handle
		subErr error
	)
	tc.yieldAndWait(func() {
		h, subErr = d.pool.Submit(op, func(*offload.Handle) { d.wake(t) })
		if subErr != nil {
			// Submission failed — nothing will ever signal, so the
			// task must be woken here to observe the error.
			d.wake(t)
		}
	})

	if subErr != nil {
		return nil, subErr
	}
	return h.Result()
}

// yieldAndWait hands the loop back to the dispatcher and blocks until it
// resumes this task. arm runs on the dispatcher goroutine after the task
// is marked Suspended.
func (tc *TaskContext) yieldAndWait(arm func()) {
	tc.t.yield <- yieldMsg{kind: yieldSuspend, arm: arm}
	<-tc.t.resume
}
