package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	keepLatest    int
	olderThanDays int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old batches from the analytics history",
	Long:  `Remove old batch summaries from the analytics state based on age or count.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keepLatest <= 0 && olderThanDays <= 0 {
			return fmt.Errorf("either --keep-latest or --older-than is required")
		}

		recorder, err := buildRecorder()
		if err != nil {
			return err
		}

		var cutoff time.Time
		if olderThanDays > 0 {
			cutoff = time.Now().AddDate(0, 0, -olderThanDays)
		}

		candidates := recorder.PrunableBatches(keepLatest, cutoff)
		if len(candidates) == 0 {
			fmt.Println("No batches to remove.")
			return nil
		}

		fmt.Printf("Found %d batch(es) to remove:\n", len(candidates))
		for _, batch := range candidates {
			fmt.Printf("- %s (%s, %d clip(s))\n",
				batch.ID, batch.CompletedAt.Format("2006-01-02 15:04"), batch.Clips)
		}

		if cleanupDryRun {
			fmt.Println("Dry run - no batches were removed.")
			return nil
		}

		removed := recorder.PruneBatches(keepLatest, cutoff)
		fmt.Printf("Removed %d batch(es).\n", removed)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVarP(&keepLatest, "keep-latest", "k", 0, "Keep this many latest batches")
	cleanupCmd.Flags().IntVarP(&olderThanDays, "older-than", "o", 0, "Remove batches older than this many days")
	cleanupCmd.Flags().BoolVarP(&cleanupDryRun, "dry-run", "n", false, "Show what would be removed without removing")

	rootCmd.AddCommand(cleanupCmd)
}
