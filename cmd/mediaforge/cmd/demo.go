package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mediaforge/mediaforge/pkg/processor"
)

var demoJobs int

// demoCmd represents the demo command
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a batch of synthetic jobs and print engine statistics",
	Long:  `Submits a batch of synthetic jobs through the built-in passthrough processor, including one duplicate submission to demonstrate the result cache, then prints the resulting statistics.`,
	RunE:  runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().IntVar(&demoJobs, "jobs", 8, "number of synthetic jobs to submit")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	eng.start()
	defer eng.stop()

	proc := processor.NewPassthrough(eng.tracker, 20*time.Millisecond)
	mediaTypes := eng.catalog.MediaTypes()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < demoJobs; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			// The last job reuses the first job's input so the batch
			// ends with a cache hit.
			n := i
			if i == demoJobs-1 {
				n = 0
			}
			input := []byte(fmt.Sprintf("demo-input-%d", n))
			mediaType := mediaTypes[n%len(mediaTypes)]
			metadata := map[string]interface{}{
				"filename": fmt.Sprintf("demo-%d.%s", n, mediaType),
				"size":     len(input),
			}
			if _, err := eng.ctrl.Process(ctx, proc, mediaType, input, metadata, nil); err != nil {
				eng.log.Error("demo job failed", map[string]interface{}{"error": err.Error()})
			}
		}()
		// Stagger slightly so the duplicate lands after its original.
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	printStatistics(eng)
	return nil
}

func printStatistics(eng *engine) {
	stats := eng.tracker.Statistics()
	admStats := eng.ctrl.Stats()

	fmt.Printf("\nJobs: %d total, %d completed, %d failed, %d cancelled\n",
		stats.TotalJobs, stats.CompletedJobs, stats.FailedJobs, stats.CancelledJobs)
	fmt.Printf("Cache: %d entries, %d hits, %d misses\n\n",
		admStats.CacheEntries, admStats.CacheHits, admStats.CacheMisses)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Media Type", "Jobs", "Avg Duration (s)", "Avg Progress")
	for _, mediaType := range eng.catalog.MediaTypes() {
		s, ok := stats.ByMediaType[mediaType]
		if !ok {
			continue
		}
		table.Append(
			mediaType,
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%.3f", s.AvgDurationSeconds),
			fmt.Sprintf("%.1f", s.AvgProgress),
		)
	}
	table.Render()

	if len(admStats.Pool) > 0 {
		fmt.Println()
		poolTable := tablewriter.NewWriter(os.Stdout)
		poolTable.Header("Processor", "Active", "Total")
		for _, entry := range admStats.Pool {
			poolTable.Append(
				entry.ProcessorType,
				fmt.Sprintf("%d", entry.ActiveJobs),
				fmt.Sprintf("%d", entry.TotalJobs),
			)
		}
		poolTable.Render()
	}
}
