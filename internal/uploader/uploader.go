// Package uploader orchestrates rate-limited, retried clip uploads
// across the registered platforms.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/clipcast/internal/analytics"
	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/progress"
	"github.com/clipcast/clipcast/internal/ratelimit"
	"github.com/clipcast/clipcast/internal/utils"
)

// Config carries the explicit tuning values for a batch run.
type Config struct {
	// MaxAttempts bounds tries per clip and platform.
	MaxAttempts int
	// BaseDelay is the exponential backoff base between failed attempts.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff suspension. Zero means uncapped.
	MaxDelay time.Duration
	// JitterFraction randomizes backoff by ±fraction. Zero disables it.
	JitterFraction float64
	// Stagger is the pause between consecutive clips. Zero disables it.
	Stagger time.Duration
	// RandomDelayMax bounds the optional random pause before each
	// platform's attempt sequence. Zero disables it.
	RandomDelayMax time.Duration
	// MaxFileSize bounds clip files in bytes. Zero means the clip
	// package default.
	MaxFileSize int64
}

// DefaultConfig returns the tuning used when the CLI supplies nothing.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    2 * time.Minute,
		Stagger:     10 * time.Second,
	}
}

// Result aggregates everything a batch run produced.
type Result struct {
	BatchID     string
	StartedAt   time.Time
	CompletedAt time.Time

	// URLs lists succeeded upload URLs per platform.
	URLs map[string][]string
	// Outcomes holds one entry per attempted (clip, platform) pair.
	Outcomes []Outcome
	// Failures holds human-readable failure descriptions, including
	// validation failures and skipped platforms.
	Failures []string
	// Analytics is the recorder snapshot taken after the batch.
	Analytics analytics.State
}

// Succeeded counts successful outcomes.
func (r *Result) Succeeded() int {
	n := 0
	for _, out := range r.Outcomes {
		if out.Success {
			n++
		}
	}
	return n
}

// Failed counts failure entries.
func (r *Result) Failed() int {
	return len(r.Failures)
}

// Orchestrator drives batches of clips through all target platforms.
// A platform failure never aborts the rest of the batch.
type Orchestrator struct {
	registry *platform.Registry
	limiter  *ratelimit.Limiter
	recorder *analytics.Recorder
	bus      *progress.Bus
	cfg      Config

	// authed caches authenticated platform sessions until an upload
	// reports an authentication failure.
	mu     sync.Mutex
	authed map[string]bool

	// replaceable in tests
	sleep     func(ctx context.Context, d time.Duration) error
	randDelay func(max time.Duration) time.Duration
}

// New builds an orchestrator. The registry must hold at least one
// platform; everything else falls back to working defaults when nil.
func New(registry *platform.Registry, limiter *ratelimit.Limiter, recorder *analytics.Recorder, bus *progress.Bus, cfg Config) (*Orchestrator, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("platform registry is empty")
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Limit{})
	}
	if recorder == nil {
		var err error
		recorder, err = analytics.NewRecorder(analytics.NopStore{})
		if err != nil {
			return nil, err
		}
	}
	if bus == nil {
		bus = progress.NewBus()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}

	return &Orchestrator{
		registry:  registry,
		limiter:   limiter,
		recorder:  recorder,
		bus:       bus,
		cfg:       cfg,
		authed:    make(map[string]bool),
		sleep:     sleepCtx,
		randDelay: randomDelay,
	}, nil
}

// Events exposes the progress bus so callers can subscribe observers.
func (o *Orchestrator) Events() *progress.Bus {
	return o.bus
}

// Run processes clips in input order, attempting each clip's target
// platforms in configured order. It returns the aggregate result, and
// the context error if the batch was cut short by cancellation.
func (o *Orchestrator) Run(ctx context.Context, clips []*clip.Clip) (*Result, error) {
	result := &Result{
		BatchID:   uuid.New().String(),
		StartedAt: time.Now(),
		URLs:      make(map[string][]string),
	}

	utils.LogInfo("Starting batch %s with %d clip(s)", result.BatchID, len(clips))

	var runErr error
	for i, c := range clips {
		if i > 0 && o.cfg.Stagger > 0 {
			utils.LogVerbose("waiting %s before next clip", o.cfg.Stagger)
			if err := o.sleep(ctx, o.cfg.Stagger); err != nil {
				runErr = err
				break
			}
		}

		utils.LogInfo("Processing clip %d/%d: %s", i+1, len(clips), c.Title)
		if err := o.processClip(ctx, c, result); err != nil {
			runErr = err
			break
		}
	}

	o.finishBatch(result, clips)
	return result, runErr
}

// processClip validates one clip and uploads it to each of its target
// platforms. Only context cancellation is returned as an error.
func (o *Orchestrator) processClip(ctx context.Context, c *clip.Clip, result *Result) error {
	if err := c.Validate(o.cfg.MaxFileSize); err != nil {
		utils.LogWarning("Skipping clip %q: %v", c.Title, err)
		result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", c.Title, err))
		return nil
	}

	for _, name := range c.Platforms {
		p, err := o.registry.Get(name)
		if err != nil {
			reason := err.Error()
			if errors.Is(err, platform.ErrUnknownPlatform) {
				reason = "unknown platform"
			}
			utils.LogWarning("Skipping platform %s for clip %q: %v", name, c.Title, err)
			result.Failures = append(result.Failures, fmt.Sprintf("%s -> %s: %s", c.Title, name, reason))
			continue
		}

		if o.cfg.RandomDelayMax > 0 {
			delay := o.randDelay(o.cfg.RandomDelayMax)
			utils.LogVerbose("random delay of %s before %s", delay, name)
			if err := o.sleep(ctx, delay); err != nil {
				return err
			}
		}

		out := o.performWithRetry(ctx, p, c)
		result.Outcomes = append(result.Outcomes, out)

		if out.Success {
			c.SetURL(name, out.URL)
			result.URLs[name] = append(result.URLs[name], out.URL)
			o.recorder.RecordUpload(name, true, "")
			o.bus.Publish(progress.EventUploadSucceeded, fmt.Sprintf("%s -> %s", c.Title, name), map[string]interface{}{
				"platform": name,
				"clip":     c.Title,
				"url":      out.URL,
				"attempts": out.Attempts,
			})
			utils.LogSuccess("Uploaded %q to %s: %s", c.Title, name, out.URL)
		} else {
			failure := fmt.Sprintf("%s -> %s: %s", c.Title, name, out.Error)
			result.Failures = append(result.Failures, failure)
			o.recorder.RecordUpload(name, false, out.Error)
			o.bus.Publish(progress.EventUploadFailed, failure, map[string]interface{}{
				"platform": name,
				"clip":     c.Title,
				"error":    out.Error,
				"attempts": out.Attempts,
			})
			utils.LogError("Failed to upload %q to %s after %d attempt(s): %s", c.Title, name, out.Attempts, out.Error)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// finishBatch records the batch summary, snapshots analytics into the
// result, and notifies observers.
func (o *Orchestrator) finishBatch(result *Result, clips []*clip.Clip) {
	result.CompletedAt = time.Now()

	summary := analytics.BatchSummary{
		ID:          result.BatchID,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		Clips:       len(clips),
		Platforms:   targetPlatforms(clips),
		Succeeded:   result.Succeeded(),
		Failed:      result.Failed(),
		Failures:    append([]string(nil), result.Failures...),
	}
	o.recorder.RecordBatch(summary)
	result.Analytics = o.recorder.Snapshot()

	o.bus.Publish(progress.EventBatchCompleted,
		fmt.Sprintf("batch %s completed: %d succeeded, %d failed", result.BatchID, summary.Succeeded, summary.Failed),
		map[string]interface{}{
			"batch":     result.BatchID,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
			"failures":  append([]string(nil), result.Failures...),
		})

	utils.LogInfo("Batch %s completed: %d succeeded, %d failed", result.BatchID, summary.Succeeded, summary.Failed)
}

// targetPlatforms returns the union of the clips' platform lists in
// first-seen order.
func targetPlatforms(clips []*clip.Clip) []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range clips {
		for _, name := range c.Platforms {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
