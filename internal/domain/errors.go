package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Dispatcher errors
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
	ErrTaskPanicked     = errors.New("task panicked during resumption")

	// Offload pool errors
	ErrPoolClosed = errors.New("offload pool is shut down")

	// Fan-out errors
	ErrNoWorkers        = errors.New("fan-out requires at least one worker process")
	ErrWorkerSocket     = errors.New("listening socket could not be duplicated to worker")
	ErrRestartsExceeded = errors.New("worker restart budget exhausted")
)
