package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "http://127.0.0.1:8005", "Server base URL")
	rootCmd.AddCommand(statusCmd)
}

var statusURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status and per-worker request counts",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(statusURL + "/api/stats")
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", statusURL, err)
	}
	defer resp.Body.Close()

	var stats struct {
		WorkerID   int `json:"worker_id"`
		Dispatcher struct {
			Submitted int64 `json:"submitted"`
			Completed int64 `json:"completed"`
			Failed    int64 `json:"failed"`
			Active    int64 `json:"active"`
		} `json:"dispatcher"`
		Offload struct {
			Workers    int   `json:"workers"`
			Active     int   `json:"active"`
			QueueDepth int   `json:"queue_depth"`
			Submitted  int64 `json:"submitted"`
		} `json:"offload"`
		Workers []struct {
			WorkerID int    `json:"worker_id"`
			Route    string `json:"route"`
			Count    int64  `json:"count"`
		} `json:"workers"`
		DistinctWorkers int `json:"distinct_workers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	fmt.Printf("Answered by worker %d\n", stats.WorkerID)
	fmt.Printf("Dispatcher: %d submitted, %d completed, %d failed, %d active\n",
		stats.Dispatcher.Submitted, stats.Dispatcher.Completed,
		stats.Dispatcher.Failed, stats.Dispatcher.Active)
	fmt.Printf("Offload pool: %d workers, %d active, %d queued\n",
		stats.Offload.Workers, stats.Offload.Active, stats.Offload.QueueDepth)

	if len(stats.Workers) == 0 {
		return nil
	}
	fmt.Printf("\n%d distinct worker process(es) seen:\n", stats.DistinctWorkers)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKER\tROUTE\tREQUESTS")
	for _, wc := range stats.Workers {
		fmt.Fprintf(w, "%d\t%s\t%d\n", wc.WorkerID, wc.Route, wc.Count)
	}
	return w.Flush()
}
