package fanout

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Worker processes inherit the shared listening socket as fd 3 and learn
// their role from the environment. The OS accept queue then spreads
// connections across whichever workers are blocked in Accept.
const (
	workerEnv = "WEFT_WORKER"
	indexEnv  = "WEFT_WORKER_INDEX"

	// ExtraFiles[0] lands after stdin/stdout/stderr.
	listenerFD = 3
)

// IsWorker reports whether this process was spawned by a fan-out supervisor.
func IsWorker() bool {
	return os.Getenv(workerEnv) != ""
}

// WorkerIndex returns the supervisor-assigned slot (0-based), or -1 when
// not a worker. Observability only — worker identity on the wire is the pid.
func WorkerIndex() int {
	n, err := strconv.Atoi(os.Getenv(indexEnv))
	if err != nil {
		return -1
	}
	return n
}

// InheritedListener recovers the shared listening socket passed down by the
// supervisor. Returns ok=false when this process owns no inherited socket.
func InheritedListener() (net.Listener, bool, error) {
	if !IsWorker() {
		return nil, false, nil
	}
	f := os.NewFile(listenerFD, "weft-listener")
	if f == nil {
		return nil, false, fmt.Errorf("worker fd %d missing", listenerFD)
	}
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, false, fmt.Errorf("recover inherited listener: %w", err)
	}
	return ln, true, nil
}

func workerEnviron(index int) []string {
	return append(os.Environ(),
		workerEnv+"=1",
		indexEnv+"="+strconv.Itoa(index),
	)
}
