package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipcast/clipcast/internal/analytics"
	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/progress"
	"github.com/clipcast/clipcast/internal/ratelimit"
	"github.com/clipcast/clipcast/internal/services"
	"github.com/clipcast/clipcast/internal/uploader"
	"github.com/clipcast/clipcast/internal/utils"
	"github.com/clipcast/clipcast/internal/validator"
)

var (
	uploadManifestPath string
	uploadPlatforms    []string
	uploadPrivacy      string
	uploadDryRun       bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload the clips in a manifest to their target platforms",
	Long: `Read an upload manifest (YAML), validate it, and publish every clip
to its target platforms with rate limiting and retries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := loadManifest(uploadManifestPath)
		if err != nil {
			return err
		}

		// Command-line overrides apply to every clip.
		for _, c := range manifest.Clips {
			if len(uploadPlatforms) > 0 {
				c.Platforms = append([]string(nil), uploadPlatforms...)
			}
			if uploadPrivacy != "" {
				c.Privacy = clip.PrivacyStatus(uploadPrivacy)
			}
		}

		registry := platform.NewRegistry()
		services.RegisterAll(registry)

		if err := validator.ValidateManifest(manifest, registry, cfg.MaxFileSize); err != nil {
			return fmt.Errorf("manifest validation failed: %w", err)
		}

		if uploadDryRun {
			clip.ListClips(manifest)
			utils.LogInfo("Dry run - nothing was uploaded.")
			return nil
		}

		orch, err := buildOrchestrator(registry)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, runErr := orch.Run(ctx, manifest.Clips)
		printResult(result)
		if runErr != nil {
			return fmt.Errorf("batch interrupted: %w", runErr)
		}
		if result.Failed() > 0 {
			return fmt.Errorf("%d upload(s) failed", result.Failed())
		}
		return nil
	},
}

// loadManifest reads and parses the manifest at path.
func loadManifest(path string) (*clip.Manifest, error) {
	expanded, err := utils.ExpandHomeDir(path)
	if err != nil {
		return nil, err
	}
	manifest, err := clip.ReadManifest(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return manifest, nil
}

// buildOrchestrator wires the limiter, analytics recorder, and retry
// tuning from the resolved configuration.
func buildOrchestrator(registry *platform.Registry) (*uploader.Orchestrator, error) {
	limiter := ratelimit.New(ratelimit.Limit{
		MaxUploads: cfg.RateLimit.Default.MaxUploads,
		Window:     cfg.RateLimit.Default.Window.Std(),
	})
	for name, limit := range cfg.RateLimit.Platforms {
		limiter.SetLimit(name, ratelimit.Limit{
			MaxUploads: limit.MaxUploads,
			Window:     limit.Window.Std(),
		})
	}

	recorder, err := buildRecorder()
	if err != nil {
		return nil, err
	}

	return uploader.New(registry, limiter, recorder, progress.NewBus(), uploader.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelay.Std(),
		MaxDelay:       cfg.Retry.MaxDelay.Std(),
		JitterFraction: cfg.Retry.JitterFraction,
		Stagger:        cfg.Batch.Stagger.Std(),
		RandomDelayMax: cfg.Batch.RandomDelayMax.Std(),
		MaxFileSize:    cfg.MaxFileSize,
	})
}

// buildRecorder opens the persistent analytics store.
func buildRecorder() (*analytics.Recorder, error) {
	path, err := cfg.AnalyticsFile()
	if err != nil {
		return nil, err
	}
	expanded, err := utils.ExpandHomeDir(path)
	if err != nil {
		return nil, err
	}
	store, err := analytics.NewFileStore(expanded)
	if err != nil {
		return nil, err
	}
	return analytics.NewRecorder(store)
}

// printResult summarizes the batch outcome on the console.
func printResult(result *uploader.Result) {
	utils.LogInfo("Batch %s: %d succeeded, %d failed",
		result.BatchID, result.Succeeded(), result.Failed())

	names := make([]string, 0, len(result.URLs))
	for name := range result.URLs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, url := range result.URLs[name] {
			utils.LogSuccess("%s: %s", name, url)
		}
	}

	for _, failure := range result.Failures {
		utils.LogError("%s", failure)
	}
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadManifestPath, "manifest", "m", "", "Path to the upload manifest (required)")
	uploadCmd.Flags().StringSliceVarP(&uploadPlatforms, "platforms", "p", nil, "Override target platforms for all clips")
	uploadCmd.Flags().StringVar(&uploadPrivacy, "privacy", "", "Override privacy for all clips: public, private, unlisted")
	uploadCmd.Flags().BoolVarP(&uploadDryRun, "dry-run", "n", false, "Validate and list clips without uploading")

	_ = uploadCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(uploadCmd)
}
