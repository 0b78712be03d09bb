package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/daemon"
	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/fanout"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Worker process count (overrides config)")
	serveCmd.Flags().IntVar(&servePool, "pool", 0, "Offload pool size (overrides config)")
	serveCmd.Flags().StringVar(&serveMode, "mode", "", "Default /delay mode: async, block, or offload")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveWorkers int
	servePool    int
	serveMode    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the weft demo server",
	Long: `Start the demo server at 0.0.0.0:8005.

With --workers N > 1 a supervisor binds the port once and spawns N
independent worker processes sharing the accept queue.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveWorkers > 0 {
		cfg.Fanout.Workers = serveWorkers
	}
	if servePool > 0 {
		cfg.Offload.Workers = servePool
	}
	if serveMode != "" {
		if _, ok := domain.ParseDelayMode(serveMode); !ok {
			return fmt.Errorf("unknown mode %q (want async, block, or offload)", serveMode)
		}
		cfg.Delay.Mode = serveMode
	}

	// The supervisor owns the socket; each spawned worker re-enters here
	// with IsWorker true and serves on the inherited fd.
	if cfg.Fanout.Workers > 1 && !fanout.IsWorker() {
		sup, err := fanout.New(fanout.Config{
			Count:       cfg.Fanout.Workers,
			Restart:     cfg.Fanout.Restart,
			MaxRestarts: cfg.Fanout.MaxRestarts,
			Backoff:     cfg.BackoffDuration(),
			Args:        os.Args[1:], // workers re-enter serve with the same flags
		})
		if err != nil {
			return err
		}
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		return sup.Run(context.Background(), addr)
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	return d.Serve(context.Background())
}
