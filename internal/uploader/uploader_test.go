package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/clipcast/internal/analytics"
	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/progress"
	"github.com/clipcast/clipcast/internal/ratelimit"
)

// mockPlatform implements platform.Platform via testify mock.
type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *mockPlatform) IsConfigured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockPlatform) Authenticate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockPlatform) Upload(ctx context.Context, c *clip.Clip) (string, error) {
	args := m.Called(ctx, c)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) URL(videoID string) string {
	args := m.Called(videoID)
	return args.String(0)
}

// newMockPlatform builds a configured, authenticable mock.
func newMockPlatform(t *testing.T, name string) *mockPlatform {
	m := &mockPlatform{}
	m.Test(t)
	m.On("Name").Return(name)
	m.On("IsConfigured").Return(true)
	m.On("Authenticate", mock.Anything).Return(nil)
	return m
}

// newTestOrchestrator wires an orchestrator with instant sleeps and a
// recorder that keeps everything in memory.
func newTestOrchestrator(t *testing.T, registry *platform.Registry, cfg Config) (*Orchestrator, *[]time.Duration) {
	t.Helper()

	recorder, err := analytics.NewRecorder(analytics.NopStore{})
	require.NoError(t, err)

	o, err := New(registry, ratelimit.New(ratelimit.Limit{}), recorder, progress.NewBus(), cfg)
	require.NoError(t, err)

	var sleeps []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return o, &sleeps
}

// writeClipFile creates a small real file so clip validation passes.
func writeClipFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("fake video bytes"), 0644))
	return path
}

func TestNewRequiresPlatforms(t *testing.T) {
	_, err := New(nil, nil, nil, nil, Config{})
	assert.Error(t, err)

	_, err = New(platform.NewRegistry(), nil, nil, nil, Config{})
	assert.Error(t, err)
	assert.Equal(t, "platform registry is empty", err.Error())
}

func TestPerformWithRetryExhaustsAttempts(t *testing.T) {
	p := newMockPlatform(t, "youtube")
	p.On("Upload", mock.Anything, mock.Anything).Return("", errors.New("quota_exceeded"))

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, sleeps := newTestOrchestrator(t, registry, Config{MaxAttempts: 3, BaseDelay: 2 * time.Millisecond})

	c := &clip.Clip{Title: "Always Fails"}
	out := o.performWithRetry(context.Background(), p, c)

	assert.False(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Contains(t, out.Error, "quota_exceeded")
	assert.False(t, out.Timestamp.IsZero())
	p.AssertNumberOfCalls(t, "Upload", 3)

	// Backoff after attempts 1 and 2: 2^1*base and 2^2*base.
	assert.Equal(t, []time.Duration{4 * time.Millisecond, 8 * time.Millisecond}, *sleeps)
}

func TestPerformWithRetrySucceedsOnSecondAttempt(t *testing.T) {
	p := newMockPlatform(t, "youtube")
	p.On("Upload", mock.Anything, mock.Anything).Return("", errors.New("server hiccup")).Once()
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-1", nil).Once()
	p.On("URL", "vid-1").Return("https://youtube.example/vid-1")

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, _ := newTestOrchestrator(t, registry, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	c := &clip.Clip{Title: "Second Try"}
	out := o.performWithRetry(context.Background(), p, c)

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "https://youtube.example/vid-1", out.URL)
	assert.Empty(t, out.Error)
	p.AssertNumberOfCalls(t, "Upload", 2)
}

func TestPerformWithRetryEmptyIdentifierIsFailure(t *testing.T) {
	p := newMockPlatform(t, "youtube")
	p.On("Upload", mock.Anything, mock.Anything).Return("", nil)

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, _ := newTestOrchestrator(t, registry, Config{MaxAttempts: 2, BaseDelay: time.Millisecond})

	out := o.performWithRetry(context.Background(), p, &clip.Clip{Title: "Empty ID"})

	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "empty video id")
	p.AssertNumberOfCalls(t, "Upload", 2)
}

func TestRunTwoClipsOnePlatform(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "uploader_test")
	require.NoError(t, err)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Errorf("failed to cleanup temp dir: %v", err)
		}
	}()

	p := newMockPlatform(t, "youtube")
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-1", nil).Once()
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-2", nil).Once()
	p.On("URL", "vid-1").Return("https://youtube.example/vid-1")
	p.On("URL", "vid-2").Return("https://youtube.example/vid-2")

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, _ := newTestOrchestrator(t, registry, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	var events []progress.EventType
	o.Events().Subscribe(progress.ObserverFunc(func(e progress.Event) {
		events = append(events, e.Type)
	}))

	clips := []*clip.Clip{
		{Title: "Clip One", FilePath: writeClipFile(t, tempDir, "one.mp4"), Platforms: []string{"youtube"}},
		{Title: "Clip Two", FilePath: writeClipFile(t, tempDir, "two.mp4"), Platforms: []string{"youtube"}},
	}

	result, err := o.Run(context.Background(), clips)
	require.NoError(t, err)

	assert.Len(t, result.URLs["youtube"], 2)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 2, result.Succeeded())
	assert.Equal(t, "https://youtube.example/vid-1", clips[0].URL("youtube"))
	assert.Equal(t, "https://youtube.example/vid-2", clips[1].URL("youtube"))

	// Analytics snapshot reflects the batch.
	assert.Equal(t, 2, result.Analytics.TotalAttempts)
	require.NotNil(t, result.Analytics.Platforms["youtube"])
	assert.Equal(t, 2, result.Analytics.Platforms["youtube"].Successes)
	require.Len(t, result.Analytics.Batches, 1)
	assert.Equal(t, 2, result.Analytics.Batches[0].Clips)

	assert.Equal(t, []progress.EventType{
		progress.EventUploadSucceeded,
		progress.EventUploadSucceeded,
		progress.EventBatchCompleted,
	}, events)
}

func TestRunPlatformFailureIsIsolated(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "uploader_isolation_test")
	require.NoError(t, err)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Errorf("failed to cleanup temp dir: %v", err)
		}
	}()

	alpha := newMockPlatform(t, "alpha")
	alpha.On("Upload", mock.Anything, mock.Anything).Return("vid-a", nil)
	alpha.On("URL", "vid-a").Return("https://alpha.example/vid-a")

	bravo := newMockPlatform(t, "bravo")
	bravo.On("Upload", mock.Anything, mock.Anything).Return("", errors.New("quota_exceeded"))

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(alpha))
	require.NoError(t, registry.Register(bravo))

	o, _ := newTestOrchestrator(t, registry, Config{MaxAttempts: 2, BaseDelay: time.Millisecond})

	c := &clip.Clip{
		Title:     "Launch Video",
		FilePath:  writeClipFile(t, tempDir, "launch.mp4"),
		Platforms: []string{"alpha", "bravo"},
	}

	result, err := o.Run(context.Background(), []*clip.Clip{c})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://alpha.example/vid-a"}, result.URLs["alpha"])
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Launch Video -> bravo: quota_exceeded", result.Failures[0])
	bravo.AssertNumberOfCalls(t, "Upload", 2)

	assert.Equal(t, 1, result.Analytics.Platforms["bravo"].ErrorCounts["quota_exceeded"])
}

func TestRunValidationFailureSkipsClip(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "uploader_validation_test")
	require.NoError(t, err)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Errorf("failed to cleanup temp dir: %v", err)
		}
	}()

	p := newMockPlatform(t, "youtube")
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-1", nil).Once()
	p.On("URL", "vid-1").Return("https://youtube.example/vid-1")

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, _ := newTestOrchestrator(t, registry, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	clips := []*clip.Clip{
		{Title: "Ghost Clip", FilePath: filepath.Join(tempDir, "missing.mp4"), Platforms: []string{"youtube"}},
		{Title: "Real Clip", FilePath: writeClipFile(t, tempDir, "real.mp4"), Platforms: []string{"youtube"}},
	}

	result, err := o.Run(context.Background(), clips)
	require.NoError(t, err)

	// The invalid clip contributes zero platform attempts but the
	// batch continues.
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "Ghost Clip: ")
	assert.Len(t, result.Outcomes, 1)
	assert.Equal(t, "Real Clip", result.Outcomes[0].ClipTitle)
	p.AssertNumberOfCalls(t, "Upload", 1)
}

func TestRunConfiguredFileSizeLimit(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "uploader_filesize_test")
	require.NoError(t, err)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Errorf("failed to cleanup temp dir: %v", err)
		}
	}()

	p := newMockPlatform(t, "youtube")

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	// The fixture file is 16 bytes; a 4-byte bound rejects it.
	o, _ := newTestOrchestrator(t, registry, Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxFileSize: 4,
	})

	c := &clip.Clip{
		Title:     "Oversized",
		FilePath:  writeClipFile(t, tempDir, "big.mp4"),
		Platforms: []string{"youtube"},
	}

	result, err := o.Run(context.Background(), []*clip.Clip{c})
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "exceeds maximum 4 bytes")
	assert.Empty(t, result.Outcomes)
	p.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestRunUnknownPlatformSkipped(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "uploader_unknown_test")
	require.NoError(t, err)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Errorf("failed to cleanup temp dir: %v", err)
		}
	}()

	p := newMockPlatform(t, "youtube")
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-1", nil)
	p.On("URL", "vid-1").Return("https://youtube.example/vid-1")

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, _ := newTestOrchestrator(t, registry, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	c := &clip.Clip{
		Title:     "Cross Post",
		FilePath:  writeClipFile(t, tempDir, "cross.mp4"),
		Platforms: []string{"myspace", "youtube"},
	}

	result, err := o.Run(context.Background(), []*clip.Clip{c})
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Cross Post -> myspace: unknown platform", result.Failures[0])
	// The known platform is still attempted.
	assert.Len(t, result.URLs["youtube"], 1)
}

func TestAuthenticationCachedUntilAuthFailure(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "uploader_auth_test")
	require.NoError(t, err)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Errorf("failed to cleanup temp dir: %v", err)
		}
	}()

	p := newMockPlatform(t, "youtube")
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-1", nil).Once()
	p.On("Upload", mock.Anything, mock.Anything).Return("", fmt.Errorf("expired token: %w", platform.ErrAuthFailed)).Once()
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-2", nil).Once()
	p.On("URL", "vid-1").Return("https://youtube.example/vid-1")
	p.On("URL", "vid-2").Return("https://youtube.example/vid-2")

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, _ := newTestOrchestrator(t, registry, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	clips := []*clip.Clip{
		{Title: "Clip One", FilePath: writeClipFile(t, tempDir, "one.mp4"), Platforms: []string{"youtube"}},
		{Title: "Clip Two", FilePath: writeClipFile(t, tempDir, "two.mp4"), Platforms: []string{"youtube"}},
	}

	result, err := o.Run(context.Background(), clips)
	require.NoError(t, err)

	assert.Len(t, result.URLs["youtube"], 2)
	assert.Empty(t, result.Failures)

	// First upload authenticates once; the auth failure on clip two
	// invalidates the session and forces one re-authentication.
	p.AssertNumberOfCalls(t, "Authenticate", 2)
	p.AssertNumberOfCalls(t, "Upload", 3)
}

func TestMissingCredentialsExhaustRetries(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "uploader_creds_test")
	require.NoError(t, err)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Errorf("failed to cleanup temp dir: %v", err)
		}
	}()

	p := &mockPlatform{}
	p.Test(t)
	p.On("Name").Return("tiktok")
	p.On("IsConfigured").Return(false)

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, _ := newTestOrchestrator(t, registry, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	c := &clip.Clip{
		Title:     "No Creds",
		FilePath:  writeClipFile(t, tempDir, "nocreds.mp4"),
		Platforms: []string{"tiktok"},
	}

	result, err := o.Run(context.Background(), []*clip.Clip{c})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	out := result.Outcomes[0]
	assert.False(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Contains(t, out.Error, "credentials not configured")
	p.AssertNotCalled(t, "Authenticate", mock.Anything)
	p.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestRunStaggerBetweenClips(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "uploader_stagger_test")
	require.NoError(t, err)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Errorf("failed to cleanup temp dir: %v", err)
		}
	}()

	p := newMockPlatform(t, "youtube")
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-1", nil).Once()
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-2", nil).Once()
	p.On("URL", "vid-1").Return("https://youtube.example/vid-1")
	p.On("URL", "vid-2").Return("https://youtube.example/vid-2")

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, sleeps := newTestOrchestrator(t, registry, Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Stagger:     7 * time.Second,
	})

	clips := []*clip.Clip{
		{Title: "Clip One", FilePath: writeClipFile(t, tempDir, "one.mp4"), Platforms: []string{"youtube"}},
		{Title: "Clip Two", FilePath: writeClipFile(t, tempDir, "two.mp4"), Platforms: []string{"youtube"}},
	}

	_, err = o.Run(context.Background(), clips)
	require.NoError(t, err)

	// One stagger pause between the two clips, no backoffs.
	assert.Equal(t, []time.Duration{7 * time.Second}, *sleeps)
}

func TestRunRandomDelayBeforePlatform(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "uploader_delay_test")
	require.NoError(t, err)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Errorf("failed to cleanup temp dir: %v", err)
		}
	}()

	p := newMockPlatform(t, "youtube")
	p.On("Upload", mock.Anything, mock.Anything).Return("vid-1", nil)
	p.On("URL", "vid-1").Return("https://youtube.example/vid-1")

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(p))

	o, sleeps := newTestOrchestrator(t, registry, Config{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		RandomDelayMax: time.Minute,
	})
	o.randDelay = func(max time.Duration) time.Duration { return 5 * time.Second }

	c := &clip.Clip{
		Title:     "Delayed",
		FilePath:  writeClipFile(t, tempDir, "delayed.mp4"),
		Platforms: []string{"youtube"},
	}

	_, err = o.Run(context.Background(), []*clip.Clip{c})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{5 * time.Second}, *sleeps)
}

func TestBackoffDelayCappedAndJittered(t *testing.T) {
	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(newMockPlatform(t, "youtube")))

	o, _ := newTestOrchestrator(t, registry, Config{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    3 * time.Second,
	})

	assert.Equal(t, 2*time.Second, o.backoffDelay(1))
	assert.Equal(t, 3*time.Second, o.backoffDelay(2), "4s capped at 3s")
	assert.Equal(t, 3*time.Second, o.backoffDelay(4))

	o.cfg.JitterFraction = 0.2
	for i := 0; i < 20; i++ {
		d := o.backoffDelay(1)
		assert.GreaterOrEqual(t, d, 1600*time.Millisecond)
		assert.LessOrEqual(t, d, 2400*time.Millisecond)
	}
}
