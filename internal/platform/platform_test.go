package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/clipcast/internal/clip"
)

// fakePlatform is a minimal Platform used to exercise the registry.
type fakePlatform struct {
	name string
}

func (f *fakePlatform) Name() string                           { return f.name }
func (f *fakePlatform) IsConfigured() bool                     { return true }
func (f *fakePlatform) Authenticate(ctx context.Context) error { return nil }
func (f *fakePlatform) Upload(ctx context.Context, c *clip.Clip) (string, error) {
	return "video-id", nil
}
func (f *fakePlatform) URL(videoID string) string {
	return fmt.Sprintf("https://%s.example/%s", f.name, videoID)
}

func TestRegistryRegister(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		setup    func(*Registry)
		wantErr  bool
		errMsg   string
	}{
		{
			name:     "successful registration",
			platform: &fakePlatform{name: "youtube"},
			wantErr:  false,
		},
		{
			name:     "nil platform",
			platform: nil,
			wantErr:  true,
			errMsg:   "cannot register nil platform",
		},
		{
			name:     "empty name",
			platform: &fakePlatform{name: ""},
			wantErr:  true,
			errMsg:   "platform name cannot be empty",
		},
		{
			name:     "duplicate registration",
			platform: &fakePlatform{name: "tiktok"},
			setup: func(r *Registry) {
				require.NoError(t, r.Register(&fakePlatform{name: "tiktok"}))
			},
			wantErr: true,
			errMsg:  "platform tiktok is already registered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			if tt.setup != nil {
				tt.setup(registry)
			}

			err := registry.Register(tt.platform)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Equal(t, tt.errMsg, err.Error())
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistryGet(t *testing.T) {
	registry := NewRegistry()
	yt := &fakePlatform{name: "youtube"}
	require.NoError(t, registry.Register(yt))

	got, err := registry.Get("youtube")
	assert.NoError(t, err)
	assert.Equal(t, yt, got)

	_, err = registry.Get("")
	assert.Error(t, err)

	_, err = registry.Get("myspace")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPlatform))
}

func TestRegistryNames(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"twitter", "youtube", "instagram"} {
		require.NoError(t, registry.Register(&fakePlatform{name: name}))
	}

	assert.Equal(t, []string{"instagram", "twitter", "youtube"}, registry.Names())
	assert.Equal(t, 3, registry.Len())

	list := registry.List()
	require.Len(t, list, 3)
	assert.Equal(t, "instagram", list[0].Name())
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(ErrAuthFailed))
	assert.True(t, IsAuthError(fmt.Errorf("upload rejected: %w", ErrAuthFailed)))
	assert.False(t, IsAuthError(errors.New("network timeout")))
	assert.False(t, IsAuthError(nil))
}
