// Package analytics aggregates upload results across batches and
// persists them between runs.
package analytics

import (
	"sync"
	"time"

	"github.com/clipcast/clipcast/internal/utils"
)

// PlatformStats accumulates per-platform upload counters.
type PlatformStats struct {
	Successes     int            `json:"successes"`
	Failures      int            `json:"failures"`
	LastSuccessAt time.Time      `json:"lastSuccessAt,omitempty"`
	ErrorCounts   map[string]int `json:"errorCounts,omitempty"`
}

// SuccessRate returns successes over total recorded outcomes for the
// platform, or 0 when nothing was recorded yet.
func (s *PlatformStats) SuccessRate() float64 {
	total := s.Successes + s.Failures
	if total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(total)
}

// BatchSummary captures the outcome of one orchestrated batch.
type BatchSummary struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Clips       int       `json:"clips"`
	Platforms   []string  `json:"platforms,omitempty"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Failures    []string  `json:"failures,omitempty"`
}

// State is the full analytics aggregate kept on disk.
type State struct {
	TotalAttempts int                       `json:"totalAttempts"`
	Platforms     map[string]*PlatformStats `json:"platforms"`
	Batches       []BatchSummary            `json:"batches"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

func newState() *State {
	return &State{Platforms: make(map[string]*PlatformStats)}
}

// Recorder applies upload outcomes to the analytics state. A failed
// save is logged and tolerated so reporting never blocks uploads.
type Recorder struct {
	mu    sync.Mutex
	state *State
	store Store
}

// NewRecorder loads prior state from the store, starting fresh when
// the store has none.
func NewRecorder(store Store) (*Recorder, error) {
	if store == nil {
		store = NopStore{}
	}
	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = newState()
	}
	if state.Platforms == nil {
		state.Platforms = make(map[string]*PlatformStats)
	}
	return &Recorder{state: state, store: store}, nil
}

// RecordUpload counts one finished upload outcome for a platform.
// errorDescription is recorded in the platform's error-frequency
// table when the outcome failed.
func (r *Recorder) RecordUpload(platform string, success bool, errorDescription string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.state.Platforms[platform]
	if !ok {
		stats = &PlatformStats{}
		r.state.Platforms[platform] = stats
	}

	r.state.TotalAttempts++
	if success {
		stats.Successes++
		stats.LastSuccessAt = time.Now()
	} else {
		stats.Failures++
		if errorDescription != "" {
			if stats.ErrorCounts == nil {
				stats.ErrorCounts = make(map[string]int)
			}
			stats.ErrorCounts[errorDescription]++
		}
	}

	r.persist()
}

// RecordBatch appends a batch summary to the history.
func (r *Recorder) RecordBatch(summary BatchSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Batches = append(r.state.Batches, summary)
	r.persist()
}

// PrunableBatches returns the batches PruneBatches would remove for
// the same arguments, oldest first.
func (r *Recorder) PrunableBatches(keepLatest int, cutoff time.Time) []BatchSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := r.prunable(keepLatest, cutoff)
	var out []BatchSummary
	for i, batch := range r.state.Batches {
		if drop[i] {
			out = append(out, batch)
		}
	}
	return out
}

// PruneBatches trims the batch history. When keepLatest is positive,
// batches beyond the newest keepLatest become candidates. When cutoff
// is non-zero, batches completed before it become candidates too.
// With neither set nothing is removed. Returns the number of batches
// removed.
func (r *Recorder) PruneBatches(keepLatest int, cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := r.prunable(keepLatest, cutoff)
	kept := make([]BatchSummary, 0, len(r.state.Batches))
	for i, batch := range r.state.Batches {
		if !drop[i] {
			kept = append(kept, batch)
		}
	}

	removed := len(r.state.Batches) - len(kept)
	if removed > 0 {
		r.state.Batches = kept
		r.persist()
	}
	return removed
}

// prunable marks the batches selected for removal. Batches are stored
// oldest first. Assumes the lock is held.
func (r *Recorder) prunable(keepLatest int, cutoff time.Time) []bool {
	drop := make([]bool, len(r.state.Batches))
	if keepLatest > 0 {
		for i := 0; i+keepLatest < len(r.state.Batches); i++ {
			drop[i] = true
		}
	}
	if !cutoff.IsZero() {
		for i, batch := range r.state.Batches {
			if batch.CompletedAt.Before(cutoff) {
				drop[i] = true
			}
		}
	}
	return drop
}

// Snapshot returns a deep copy of the current state. Repeated calls
// without intervening writes return equal values.
func (r *Recorder) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := State{
		TotalAttempts: r.state.TotalAttempts,
		Platforms:     make(map[string]*PlatformStats, len(r.state.Platforms)),
		Batches:       make([]BatchSummary, len(r.state.Batches)),
		UpdatedAt:     r.state.UpdatedAt,
	}
	for i, batch := range r.state.Batches {
		batch.Platforms = append([]string(nil), batch.Platforms...)
		batch.Failures = append([]string(nil), batch.Failures...)
		out.Batches[i] = batch
	}
	for name, stats := range r.state.Platforms {
		copied := *stats
		if stats.ErrorCounts != nil {
			copied.ErrorCounts = make(map[string]int, len(stats.ErrorCounts))
			for desc, n := range stats.ErrorCounts {
				copied.ErrorCounts[desc] = n
			}
		}
		out.Platforms[name] = &copied
	}
	return out
}

// persist assumes the lock is held.
func (r *Recorder) persist() {
	r.state.UpdatedAt = time.Now()
	if err := r.store.Save(r.state); err != nil {
		utils.LogWarning("failed to save analytics state: %v", err)
	}
}
