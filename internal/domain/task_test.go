package domain

import (
	"testing"
	"time"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to TaskState
		want     bool
	}{
		{TaskPending, TaskRunning, true},
		{TaskRunning, TaskSuspended, true},
		{TaskRunning, TaskCompleted, true},
		{TaskRunning, TaskFailed, true},
		{TaskSuspended, TaskRunning, true},

		{TaskPending, TaskCompleted, false},
		{TaskPending, TaskSuspended, false},
		{TaskSuspended, TaskCompleted, false},
		{TaskSuspended, TaskFailed, false},
		{TaskCompleted, TaskRunning, false},
		{TaskFailed, TaskRunning, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseDelayMode(t *testing.T) {
	tests := []struct {
		in     string
		want   DelayMode
		wantOK bool
	}{
		{"async", ModeAsync, true},
		{"block", ModeBlock, true},
		{"offload", ModeOffload, true},
		{"", "", false},
		{"threads", "", false},
		{"ASYNC", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDelayMode(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseDelayMode(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestTaskInfo_IsTerminal(t *testing.T) {
	for _, s := range []TaskState{TaskPending, TaskRunning, TaskSuspended} {
		if (TaskInfo{State: s}).IsTerminal() {
			t.Errorf("IsTerminal() with state %s = true, want false", s)
		}
	}
	for _, s := range []TaskState{TaskCompleted, TaskFailed} {
		if !(TaskInfo{State: s}).IsTerminal() {
			t.Errorf("IsTerminal() with state %s = false, want true", s)
		}
	}
}

func TestTaskInfo_Duration(t *testing.T) {
	start := time.Now()
	info := TaskInfo{StartedAt: start, CompletedAt: start.Add(3 * time.Second)}
	if got := info.Duration(); got != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", got)
	}
	if got := (TaskInfo{StartedAt: start}).Duration(); got != 0 {
		t.Errorf("Duration() without completion = %v, want 0", got)
	}
}
