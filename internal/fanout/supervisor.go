// Package fanout runs N independent worker processes behind one listening
// socket for CPU-bound scaling.
//
// The supervisor binds the port once, duplicates the socket into each child
// via fd inheritance, and re-execs itself in worker mode. Each child runs
// its own dispatcher and offload pool; nothing but the socket is shared, so
// one worker crashing never touches its siblings.
package fanout

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/weftworks/weft/internal/domain"
)

// Config controls the fan-out supervisor.
type Config struct {
	Count       int           // number of worker processes
	Restart     bool          // respawn crashed workers (default off)
	MaxRestarts int           // per-slot restart budget when Restart is on
	Backoff     time.Duration // wait before a respawn (default 1s)
	Args        []string      // argv passed to each worker (default "serve")
}

// exit is one child's termination, reported by its waiter goroutine.
type exit struct {
	index int
	pid   int
	err   error
}

// Supervisor owns the shared socket and the worker process set.
type Supervisor struct {
	cfg    Config
	exe    string
	lnFile *os.File

	mu    sync.Mutex
	procs map[int]*exec.Cmd // slot index → running child
}

// New creates a supervisor for the given config.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Count <= 0 {
		return nil, domain.ErrNoWorkers
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if len(cfg.Args) == 0 {
		cfg.Args = []string{"serve"}
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &Supervisor{
		cfg:   cfg,
		exe:   exe,
		procs: make(map[int]*exec.Cmd),
	}, nil
}

// Run binds addr, spawns the workers, and supervises them until ctx is
// cancelled or every worker has exited with no restarts left.
func (s *Supervisor) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer ln.Close()

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return domain.ErrWorkerSocket
	}
	file, err := tcpLn.File()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWorkerSocket, err)
	}
	s.lnFile = file
	defer file.Close()

	exits := make(chan exit, s.cfg.Count)
	restarts := make([]int, s.cfg.Count)

	for i := 0; i < s.cfg.Count; i++ {
		if err := s.spawn(i, exits); err != nil {
			s.killAll()
			return err
		}
	}
	log.Printf("[fanout] serving on http://%s with %d worker processes", addr, s.cfg.Count)

	alive := s.cfg.Count
	for alive > 0 {
		select {
		case <-ctx.Done():
			s.killAll()
			return nil
		case e := <-exits:
			alive--
			log.Printf("[fanout] worker %d (pid %d) exited: %v", e.index, e.pid, e.err)

			if !s.cfg.Restart {
				continue // siblings keep serving
			}
			if s.cfg.MaxRestarts > 0 && restarts[e.index] >= s.cfg.MaxRestarts {
				log.Printf("[fanout] worker %d: %v", e.index, domain.ErrRestartsExceeded)
				continue
			}
			restarts[e.index]++

			select {
			case <-ctx.Done():
				s.killAll()
				return nil
			case <-time.After(s.cfg.Backoff):
			}
			if err := s.spawn(e.index, exits); err != nil {
				log.Printf("[fanout] worker %d respawn failed: %v", e.index, err)
				continue
			}
			alive++
		}
	}
	return nil
}

// spawn re-execs this binary in worker mode with the shared socket as fd 3.
func (s *Supervisor) spawn(index int, exits chan<- exit) error {
	cmd := exec.Command(s.exe, s.cfg.Args...)
	cmd.Env = workerEnviron(index)
	cmd.ExtraFiles = []*os.File{s.lnFile}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker %d: %w", index, err)
	}
	pid := cmd.Process.Pid
	log.Printf("[fanout] worker %d started (pid %d)", index, pid)

	s.mu.Lock()
	s.procs[index] = cmd
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		if s.procs[index] == cmd {
			delete(s.procs, index)
		}
		s.mu.Unlock()
		exits <- exit{index: index, pid: pid, err: err}
	}()
	return nil
}

// killAll terminates every running worker and waits briefly for each.
func (s *Supervisor) killAll() {
	s.mu.Lock()
	procs := make([]*exec.Cmd, 0, len(s.procs))
	for _, cmd := range s.procs {
		procs = append(procs, cmd)
	}
	s.mu.Unlock()

	for _, cmd := range procs {
		if cmd.Process != nil {
			cmd.Process.Kill() //nolint:errcheck
		}
	}
}
