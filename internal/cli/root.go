// Package cli implements the weft command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "weft — HTTP request-concurrency demonstration server",
	Long: `weft serves a tiny HTTP API through a single-threaded cooperative
dispatcher, making the classic serving trade-offs observable side by side:
non-blocking waits, inline blocking calls, thread-pool offload, and
multi-process fan-out.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
