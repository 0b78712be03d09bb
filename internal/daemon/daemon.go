package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weftworks/weft/internal/api"
	"github.com/weftworks/weft/internal/dispatch"
	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/fanout"
	"github.com/weftworks/weft/internal/infra/ledger"
	"github.com/weftworks/weft/internal/offload"
)

// Daemon is one worker's runtime: a dispatcher, an offload pool, the HTTP
// server, and (optionally) the shared request ledger.
type Daemon struct {
	Config     Config
	Dispatcher *dispatch.Dispatcher
	Pool       *offload.Pool
	Ledger     *ledger.DB
	Server     *api.Server
	cancel     context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	pool := offload.NewPool(cfg.Offload.Workers)
	dispatcher := dispatch.New(pool)

	var db *ledger.DB
	if cfg.Ledger.Enabled {
		dir := cfg.Ledger.Dir
		if dir == "" {
			dir = weftHome()
		}
		var err error
		db, err = ledger.Open(dir)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
	}

	mode, ok := domain.ParseDelayMode(cfg.Delay.Mode)
	if !ok {
		mode = domain.ModeAsync
	}
	srv := api.NewServer(dispatcher, pool, db, cfg.DelayDuration(), mode)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:     cfg,
		Dispatcher: dispatcher,
		Pool:       pool,
		Ledger:     db,
		Server:     srv,
	}, nil
}

// Serve starts the dispatcher loop and the HTTP server, blocking until
// shutdown. When spawned by a fan-out supervisor it serves on the inherited
// shared socket instead of binding its own.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Dispatcher.Run(ctx)

	ln, inherited, err := fanout.InheritedListener()
	if err != nil {
		return err
	}
	if !inherited {
		addr := fmt.Sprintf("%s:%d", d.Config.Server.Host, d.Config.Server.Port)
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
	}

	httpServer := &http.Server{
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // must outlive the demo delay
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	if inherited {
		log.Printf("[daemon] worker %d (pid %d) serving on shared socket %s",
			fanout.WorkerIndex(), os.Getpid(), ln.Addr())
	} else {
		log.Printf("[daemon] weft serving on http://%s (pid %d)", ln.Addr(), os.Getpid())
		if d.Config.Telemetry.Prometheus {
			log.Printf("[daemon]   metrics: http://%s/metrics", ln.Addr())
		}
	}

	err = httpServer.Serve(ln)
	d.Close()
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.Ledger != nil {
		_ = d.Ledger.Close()
	}
}
