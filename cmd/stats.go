package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipcast/clipcast/internal/analytics"
	"github.com/clipcast/clipcast/internal/utils"
)

// recentBatchCount bounds how many batches the summary lists.
const recentBatchCount = 5

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show upload analytics",
	Long: `Print per-platform success rates, the most frequent errors, and
recent batch outcomes from the persisted analytics state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		recorder, err := buildRecorder()
		if err != nil {
			return err
		}
		snap := recorder.Snapshot()

		if statsJSON {
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode analytics: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		printStats(snap)
		return nil
	},
}

// printStats renders the analytics snapshot with terminal colors.
func printStats(snap analytics.State) {
	if snap.TotalAttempts == 0 {
		fmt.Println("No uploads recorded yet.")
		return
	}

	fmt.Printf("Total upload attempts: %s\n", utils.Highlight(strconv.Itoa(snap.TotalAttempts)))

	names := make([]string, 0, len(snap.Platforms))
	for name := range snap.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stats := snap.Platforms[name]
		fmt.Printf("\n%s\n", utils.Highlight(name))
		fmt.Printf("  uploads: %s ok, %s failed (%.0f%% success)\n",
			utils.Success(strconv.Itoa(stats.Successes)),
			utils.Error(strconv.Itoa(stats.Failures)),
			stats.SuccessRate()*100)
		if !stats.LastSuccessAt.IsZero() {
			fmt.Printf("  last success: %s\n", stats.LastSuccessAt.Format(time.RFC3339))
		}

		errs := make([]string, 0, len(stats.ErrorCounts))
		for desc := range stats.ErrorCounts {
			errs = append(errs, desc)
		}
		sort.Strings(errs)
		for _, desc := range errs {
			fmt.Printf("  %s %s\n", utils.Warning(fmt.Sprintf("%dx", stats.ErrorCounts[desc])), desc)
		}
	}

	if len(snap.Batches) > 0 {
		fmt.Println("\nRecent batches:")
		start := len(snap.Batches) - recentBatchCount
		if start < 0 {
			start = 0
		}
		for _, batch := range snap.Batches[start:] {
			fmt.Printf("  %s  %s  %d clip(s), %s ok, %s failed\n",
				batch.CompletedAt.Format("2006-01-02 15:04"),
				batch.ID,
				batch.Clips,
				utils.Success(strconv.Itoa(batch.Succeeded)),
				utils.Error(strconv.Itoa(batch.Failed)))
		}
	}
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print the raw analytics state as JSON")
	rootCmd.AddCommand(statsCmd)
}
