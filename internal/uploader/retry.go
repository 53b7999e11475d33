package uploader

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/utils"
)

// Outcome is the terminal result of one upload attempt sequence for a
// (clip, platform) pair.
type Outcome struct {
	ClipTitle string
	Platform  string
	Success   bool
	URL       string
	Error     string
	Attempts  int
	Timestamp time.Time
}

// performWithRetry drives one clip through one platform with bounded
// retries. Each attempt waits on the rate limiter, ensures an
// authenticated session, then calls the platform's upload operation.
// Failed attempts back off exponentially before the next try.
func (o *Orchestrator) performWithRetry(ctx context.Context, p platform.Platform, c *clip.Clip) Outcome {
	name := p.Name()
	out := Outcome{ClipTitle: c.Title, Platform: name}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		out.Attempts = attempt

		if err := o.limiter.Acquire(ctx, name); err != nil {
			lastErr = fmt.Errorf("rate limit wait aborted: %w", err)
			break
		}

		err := o.ensureAuthenticated(ctx, p)
		if err == nil {
			var id string
			id, err = p.Upload(ctx, c)
			if err == nil && id == "" {
				err = fmt.Errorf("platform returned an empty video id")
			}
			if err == nil {
				out.Success = true
				out.URL = p.URL(id)
				out.Timestamp = time.Now()
				return out
			}
			if platform.IsAuthError(err) {
				o.invalidateAuth(name)
			}
		}

		lastErr = err
		utils.LogVerbose("attempt %d/%d for %q on %s failed: %v", attempt, o.cfg.MaxAttempts, c.Title, name, err)

		if ctx.Err() != nil {
			break
		}
		if attempt < o.cfg.MaxAttempts {
			if err := o.sleep(ctx, o.backoffDelay(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	out.Error = lastErr.Error()
	out.Timestamp = time.Now()
	return out
}

// ensureAuthenticated authenticates the platform unless a prior
// session is still cached. Missing credentials fail the attempt like
// any other authentication error.
func (o *Orchestrator) ensureAuthenticated(ctx context.Context, p platform.Platform) error {
	name := p.Name()

	o.mu.Lock()
	cached := o.authed[name]
	o.mu.Unlock()
	if cached {
		return nil
	}

	if !p.IsConfigured() {
		return fmt.Errorf("authentication failed: %w", platform.ErrNotConfigured)
	}
	if err := p.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	o.mu.Lock()
	o.authed[name] = true
	o.mu.Unlock()
	return nil
}

// invalidateAuth drops the cached session so the next attempt
// re-authenticates.
func (o *Orchestrator) invalidateAuth(name string) {
	o.mu.Lock()
	delete(o.authed, name)
	o.mu.Unlock()
}

// backoffDelay returns 2^attempt * BaseDelay capped at MaxDelay, with
// optional jitter. attempt is 1-based.
func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	d := o.cfg.BaseDelay * time.Duration(1<<uint(attempt))
	if o.cfg.MaxDelay > 0 && d > o.cfg.MaxDelay {
		d = o.cfg.MaxDelay
	}
	if o.cfg.JitterFraction > 0 {
		d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*o.cfg.JitterFraction))
	}
	return d
}

// sleepCtx suspends for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// randomDelay picks a uniform delay in [0, max).
func randomDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
