package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/domain"
)

func init() {
	benchCmd.Flags().StringVar(&benchURL, "url", "http://127.0.0.1:8005", "Server base URL")
	benchCmd.Flags().IntVarP(&benchN, "requests", "n", 10, "Concurrent requests to fire")
	benchCmd.Flags().StringVar(&benchMode, "mode", "", "Delay mode override: async, block, or offload")
	benchCmd.Flags().Float64Var(&benchSeconds, "seconds", 0, "Delay override in seconds (0 = server default)")
	rootCmd.AddCommand(benchCmd)
}

var (
	benchURL     string
	benchN       int
	benchMode    string
	benchSeconds float64
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Fire concurrent /delay requests and report wall-clock time",
	Long: `Fire N concurrent POST /delay requests and compare total wall-clock
time against the per-request delay. With non-blocking or offloaded waits the
total stays near one delay; with blocking waits it approaches N × delay.`,
	RunE: runBench,
}

type benchResult struct {
	workerID int
	elapsed  time.Duration
	err      error
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchN <= 0 {
		return fmt.Errorf("need at least one request")
	}
	if benchMode != "" {
		if _, ok := domain.ParseDelayMode(benchMode); !ok {
			return fmt.Errorf("unknown mode %q (want async, block, or offload)", benchMode)
		}
	}

	target := benchURL + "/delay"
	sep := "?"
	if benchMode != "" {
		target += sep + "mode=" + benchMode
		sep = "&"
	}
	if benchSeconds > 0 {
		target += fmt.Sprintf("%sseconds=%g", sep, benchSeconds)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	results := make([]benchResult, benchN)

	fmt.Printf("Firing %d concurrent POST %s\n", benchN, target)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < benchN; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reqStart := time.Now()
			resp, err := client.Post(target, "application/json", nil)
			if err != nil {
				results[i] = benchResult{err: err}
				return
			}
			defer resp.Body.Close()

			var body struct {
				WorkerID int `json:"worker_id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				results[i] = benchResult{err: err}
				return
			}
			if resp.StatusCode != http.StatusOK {
				results[i] = benchResult{err: fmt.Errorf("status %d", resp.StatusCode)}
				return
			}
			results[i] = benchResult{workerID: body.WorkerID, elapsed: time.Since(reqStart)}
		}(i)
	}
	wg.Wait()
	total := time.Since(start)

	var (
		perRequest time.Duration
		failed     int
		byWorker   = map[int]int{}
	)
	for _, r := range results {
		if r.err != nil {
			failed++
			continue
		}
		perRequest += r.elapsed
		byWorker[r.workerID]++
	}

	fmt.Printf("\nTotal wall-clock: %s\n", total.Round(time.Millisecond))
	fmt.Printf("Sum of per-request times: %s\n", perRequest.Round(time.Millisecond))
	if failed > 0 {
		fmt.Printf("Failed requests: %d\n", failed)
	}

	workers := make([]int, 0, len(byWorker))
	for id := range byWorker {
		workers = append(workers, id)
	}
	sort.Ints(workers)

	fmt.Printf("\n%d distinct worker process(es):\n", len(workers))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKER\tREQUESTS")
	for _, id := range workers {
		fmt.Fprintf(w, "%d\t%d\n", id, byWorker[id])
	}
	return w.Flush()
}
