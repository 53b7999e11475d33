package validator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
)

type stubPlatform struct {
	name       string
	configured bool
}

func (p *stubPlatform) Name() string {
	return p.name
}

func (p *stubPlatform) IsConfigured() bool {
	return p.configured
}

func (p *stubPlatform) Authenticate(ctx context.Context) error {
	return nil
}

func (p *stubPlatform) Upload(ctx context.Context, c *clip.Clip) (string, error) {
	return "id", nil
}

func (p *stubPlatform) URL(videoID string) string {
	return "https://example.com/" + videoID
}

func newTestRegistry(t *testing.T, platforms ...*stubPlatform) *platform.Registry {
	t.Helper()

	registry := platform.NewRegistry()
	for _, p := range platforms {
		require.NoError(t, registry.Register(p))
	}
	return registry
}

func writeVideoFile(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "validator-test")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := os.RemoveAll(dir); err != nil {
			t.Errorf("Failed to remove temp dir: %v", err)
		}
	})

	path := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake video bytes"), 0644))
	return path
}

func TestValidateManifest(t *testing.T) {
	videoPath := writeVideoFile(t)
	registry := newTestRegistry(t,
		&stubPlatform{name: "youtube", configured: true},
		&stubPlatform{name: "tiktok", configured: true})

	manifest := &clip.Manifest{
		Clips: []*clip.Clip{
			{Title: "First", FilePath: videoPath, Platforms: []string{"youtube"}},
			{Title: "Second", FilePath: videoPath, Platforms: []string{"youtube", "tiktok"}},
		},
	}

	require.NoError(t, ValidateManifest(manifest, registry, 0))
}

func TestValidateManifestConfiguredFileSize(t *testing.T) {
	videoPath := writeVideoFile(t)
	registry := newTestRegistry(t, &stubPlatform{name: "youtube", configured: true})

	manifest := &clip.Manifest{
		Clips: []*clip.Clip{
			{Title: "Small", FilePath: videoPath, Platforms: []string{"youtube"}},
		},
	}

	require.NoError(t, ValidateManifest(manifest, registry, 1024))

	// The same clip fails against a bound below the file's 16 bytes.
	err := ValidateManifest(manifest, registry, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum 4 bytes")
}

func TestValidateManifestErrors(t *testing.T) {
	videoPath := writeVideoFile(t)
	registry := newTestRegistry(t, &stubPlatform{name: "youtube", configured: true})

	tests := []struct {
		name     string
		manifest *clip.Manifest
		errMsg   string
	}{
		{
			name:     "empty manifest",
			manifest: &clip.Manifest{},
			errMsg:   "manifest contains no clips",
		},
		{
			name: "missing file",
			manifest: &clip.Manifest{Clips: []*clip.Clip{
				{Title: "Ghost", FilePath: "/nonexistent/clip.mp4", Platforms: []string{"youtube"}},
			}},
			errMsg: "clip 1 (Ghost)",
		},
		{
			name: "no platforms",
			manifest: &clip.Manifest{Clips: []*clip.Clip{
				{Title: "Lonely", FilePath: videoPath},
			}},
			errMsg: "no target platforms",
		},
		{
			name: "unknown platform",
			manifest: &clip.Manifest{Clips: []*clip.Clip{
				{Title: "Lost", FilePath: videoPath, Platforms: []string{"myspace"}},
			}},
			errMsg: "unknown platform",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateManifest(tt.manifest, registry, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	registry := newTestRegistry(t,
		&stubPlatform{name: "youtube", configured: true},
		&stubPlatform{name: "tiktok", configured: false})

	assert.NoError(t, ValidateCredentials(registry, []string{"youtube"}))

	err := ValidateCredentials(registry, []string{"youtube", "tiktok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platforms missing credentials: tiktok")

	// No names checks everything registered.
	err = ValidateCredentials(registry, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiktok")
}

func TestValidateCredentialsUnknownPlatform(t *testing.T) {
	registry := newTestRegistry(t, &stubPlatform{name: "youtube", configured: true})

	err := ValidateCredentials(registry, []string{"myspace"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown platform")
}

func TestTargetPlatforms(t *testing.T) {
	manifest := &clip.Manifest{
		Clips: []*clip.Clip{
			{Title: "First", Platforms: []string{"youtube", "tiktok"}},
			{Title: "Second", Platforms: []string{"tiktok", "instagram"}},
		},
	}

	assert.Equal(t, []string{"instagram", "tiktok", "youtube"}, TargetPlatforms(manifest))
}
