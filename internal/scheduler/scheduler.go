// Package scheduler fires upload jobs at their target wall-clock
// times and tracks their lifecycle.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/progress"
	"github.com/clipcast/clipcast/internal/uploader"
	"github.com/clipcast/clipcast/internal/utils"
)

// JobState tracks a job through its lifecycle.
type JobState string

const (
	JobScheduled JobState = "scheduled"
	JobExecuting JobState = "executing"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state is completed or failed.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one scheduled upload. The scheduler owns the job for its
// lifetime; accessors hand out copies.
type Job struct {
	ID         string
	Clip       *clip.Clip
	TargetTime time.Time
	State      JobState
	Result     *uploader.Result
	Error      string
	ResolvedAt time.Time
}

// Runner executes one job's clips. *uploader.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, clips []*clip.Clip) (*uploader.Result, error)
}

// DefaultTickInterval is how often due jobs are scanned for.
const DefaultTickInterval = time.Minute

// DefaultRetention is how long resolved jobs stay visible before the
// tick sweeps them out.
const DefaultRetention = 24 * time.Hour

// Scheduler holds pending jobs and processes the due ones on each
// tick. Due jobs run sequentially inside the tick, so a job can never
// be picked up twice.
type Scheduler struct {
	runner    Runner
	bus       *progress.Bus
	interval  time.Duration
	retention time.Duration

	mu   sync.Mutex
	jobs map[string]*Job

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	// now is replaceable in tests
	now func() time.Time
}

// New creates a stopped scheduler. Non-positive interval or retention
// fall back to the defaults.
func New(runner Runner, bus *progress.Bus, interval, retention time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if bus == nil {
		bus = progress.NewBus()
	}
	return &Scheduler{
		runner:    runner,
		bus:       bus,
		interval:  interval,
		retention: retention,
		jobs:      make(map[string]*Job),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// ScheduleUpload queues a clip for execution at the given time and
// returns the new job's id.
func (s *Scheduler) ScheduleUpload(c *clip.Clip, at time.Time) (string, error) {
	if c == nil {
		return "", fmt.Errorf("cannot schedule nil clip")
	}

	job := &Job{
		ID:         uuid.New().String(),
		Clip:       c,
		TargetTime: at,
		State:      JobScheduled,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	utils.LogInfo("Scheduled %q for %s (job %s)", c.Title, at.Format(time.RFC3339), job.ID)
	return job.ID, nil
}

// SchedulePlatformUploads schedules one derived single-platform job
// per entry in timesOfDay ("HH:MM", platform-keyed). A time-of-day
// already past today rolls to tomorrow. Returns the created job ids
// in platform name order.
func (s *Scheduler) SchedulePlatformUploads(c *clip.Clip, timesOfDay map[string]string) ([]string, error) {
	if c == nil {
		return nil, fmt.Errorf("cannot schedule nil clip")
	}

	platforms := make([]string, 0, len(timesOfDay))
	for name := range timesOfDay {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)

	now := s.now()
	ids := make([]string, 0, len(platforms))
	for _, name := range platforms {
		target, err := nextOccurrence(now, timesOfDay[name])
		if err != nil {
			return ids, fmt.Errorf("failed to schedule %s: %w", name, err)
		}

		id, err := s.ScheduleUpload(c.ForPlatform(name), target)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// nextOccurrence resolves a "HH:MM" time-of-day to today's date when
// still ahead of now, otherwise tomorrow's.
func nextOccurrence(now time.Time, timeOfDay string) (time.Time, error) {
	parsed, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q (expected HH:MM): %w", timeOfDay, err)
	}

	target := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target, nil
}

// Start begins the periodic tick. It is a no-op when already started.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	utils.LogInfo("Scheduler started, checking for due jobs every %s", s.interval)
}

// Stop halts the tick. No new job processing begins after Stop
// returns; a job already executing runs to completion.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		utils.LogInfo("Scheduler stopped")
	})
}

// Wait blocks until the tick loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			// A stop racing the tick wins.
			select {
			case <-s.done:
				return
			default:
			}
			s.tick(ctx)
		}
	}
}

// tick runs every due job sequentially, then sweeps resolved jobs
// past the retention window.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*Job
	for _, job := range s.jobs {
		if job.State == JobScheduled && !job.TargetTime.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].TargetTime.Equal(due[j].TargetTime) {
			return due[i].ID < due[j].ID
		}
		return due[i].TargetTime.Before(due[j].TargetTime)
	})
	for _, job := range due {
		job.State = JobExecuting
	}
	s.mu.Unlock()

	for _, job := range due {
		s.executeJob(ctx, job)
	}

	s.sweep(now)
}

// executeJob resolves one job. Panics and runner errors mark the job
// failed without disturbing the tick loop.
func (s *Scheduler) executeJob(ctx context.Context, job *Job) {
	utils.LogInfo("Executing job %s: %s", job.ID, job.Clip.Title)

	result, err := s.runJob(ctx, job)

	s.mu.Lock()
	job.ResolvedAt = s.now()
	if err != nil {
		job.State = JobFailed
		job.Error = err.Error()
	} else {
		job.State = JobCompleted
		job.Result = result
	}
	snapshot := *job
	s.mu.Unlock()

	if err != nil {
		s.bus.Publish(progress.EventJobFailed, fmt.Sprintf("job %s failed: %v", job.ID, err), map[string]interface{}{
			"job":   snapshot.ID,
			"clip":  snapshot.Clip.Title,
			"error": snapshot.Error,
		})
		utils.LogError("Job %s failed: %v", job.ID, err)
		return
	}

	s.bus.Publish(progress.EventJobCompleted, fmt.Sprintf("job %s completed", job.ID), map[string]interface{}{
		"job":       snapshot.ID,
		"clip":      snapshot.Clip.Title,
		"succeeded": result.Succeeded(),
		"failed":    result.Failed(),
	})
	utils.LogSuccess("Job %s completed: %d succeeded, %d failed", job.ID, result.Succeeded(), result.Failed())
}

// runJob invokes the runner, converting a panic into an error.
func (s *Scheduler) runJob(ctx context.Context, job *Job) (result *uploader.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job execution panicked: %v", r)
		}
	}()
	return s.runner.Run(ctx, []*clip.Clip{job.Clip})
}

// sweep drops resolved jobs once they age past the retention window.
func (s *Scheduler) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, job := range s.jobs {
		if job.State.Terminal() && now.Sub(job.ResolvedAt) >= s.retention {
			utils.LogVerbose("removing expired job %s", id)
			delete(s.jobs, id)
		}
	}
}

// Job returns a copy of the job with the given id.
func (s *Scheduler) Job(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns copies of all live jobs ordered by target time.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetTime.Equal(out[j].TargetTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].TargetTime.Before(out[j].TargetTime)
	})
	return out
}
