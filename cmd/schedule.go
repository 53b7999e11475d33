package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/scheduler"
	"github.com/clipcast/clipcast/internal/services"
	"github.com/clipcast/clipcast/internal/utils"
	"github.com/clipcast/clipcast/internal/validator"
)

var (
	scheduleManifestPath string
	scheduleAt           string
	scheduleTimes        []string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule manifest clips for later upload",
	Long: `Queue the clips in a manifest for upload at a fixed time (--at,
RFC3339) or at per-platform times of day (--times platform=HH:MM).
The scheduler runs until every job resolves or the process is
interrupted. A time of day already past today rolls to tomorrow.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheduleAt == "" && len(scheduleTimes) == 0 {
			return fmt.Errorf("either --at or --times is required")
		}
		if scheduleAt != "" && len(scheduleTimes) > 0 {
			return fmt.Errorf("use either --at or --times, not both")
		}

		manifest, err := loadManifest(scheduleManifestPath)
		if err != nil {
			return err
		}

		registry := platform.NewRegistry()
		services.RegisterAll(registry)
		if err := validator.ValidateManifest(manifest, registry, cfg.MaxFileSize); err != nil {
			return fmt.Errorf("manifest validation failed: %w", err)
		}

		orch, err := buildOrchestrator(registry)
		if err != nil {
			return err
		}

		sched := scheduler.New(orch, orch.Events(),
			cfg.Scheduler.TickInterval.Std(), cfg.Scheduler.Retention.Std())

		if scheduleAt != "" {
			at, err := time.Parse(time.RFC3339, scheduleAt)
			if err != nil {
				return fmt.Errorf("invalid --at time %q (expected RFC3339): %w", scheduleAt, err)
			}
			for _, c := range manifest.Clips {
				if _, err := sched.ScheduleUpload(c, at); err != nil {
					return err
				}
			}
		} else {
			timesOfDay, err := parsePlatformTimes(scheduleTimes)
			if err != nil {
				return err
			}
			for _, c := range manifest.Clips {
				if _, err := sched.SchedulePlatformUploads(c, timesOfDay); err != nil {
					return err
				}
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sched.Start(ctx)
		waitForJobs(ctx, sched)
		sched.Stop()
		sched.Wait()

		return printJobs(sched)
	},
}

// parsePlatformTimes turns "platform=HH:MM" pairs into the map the
// scheduler expects.
func parsePlatformTimes(entries []string) (map[string]string, error) {
	timesOfDay := make(map[string]string, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --times entry %q (expected platform=HH:MM)", entry)
		}
		timesOfDay[parts[0]] = parts[1]
	}
	return timesOfDay, nil
}

// waitForJobs blocks until every scheduled job resolves or the context
// ends.
func waitForJobs(ctx context.Context, sched *scheduler.Scheduler) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending := 0
			for _, job := range sched.Jobs() {
				if !job.State.Terminal() {
					pending++
				}
			}
			if pending == 0 {
				return
			}
		}
	}
}

// printJobs reports the final state of every job. Returns an error
// when any job failed so the process exits non-zero.
func printJobs(sched *scheduler.Scheduler) error {
	failed := 0
	for _, job := range sched.Jobs() {
		switch job.State {
		case scheduler.JobCompleted:
			utils.LogSuccess("Job %s (%s): completed, %d succeeded, %d failed",
				job.ID, job.Clip.Title, job.Result.Succeeded(), job.Result.Failed())
			if job.Result.Failed() > 0 {
				failed++
			}
		case scheduler.JobFailed:
			utils.LogError("Job %s (%s): %s", job.ID, job.Clip.Title, job.Error)
			failed++
		default:
			utils.LogWarning("Job %s (%s): still %s at shutdown", job.ID, job.Clip.Title, job.State)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d job(s) had failures", failed)
	}
	return nil
}

func init() {
	scheduleCmd.Flags().StringVarP(&scheduleManifestPath, "manifest", "m", "", "Path to the upload manifest (required)")
	scheduleCmd.Flags().StringVar(&scheduleAt, "at", "", "Upload time for all clips (RFC3339, e.g. 2026-04-01T18:00:00Z)")
	scheduleCmd.Flags().StringSliceVar(&scheduleTimes, "times", nil, "Per-platform times of day (platform=HH:MM, repeatable)")

	_ = scheduleCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(scheduleCmd)
}
