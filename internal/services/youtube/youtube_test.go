package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
)

func TestIsConfigured(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/credentials.json")
	assert.True(t, New().IsConfigured())

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	assert.False(t, New().IsConfigured())
}

func TestName(t *testing.T) {
	assert.Equal(t, "youtube", New().Name())
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", New().URL("abc123"))
}

func TestUploadWithoutSession(t *testing.T) {
	s := New()
	_, err := s.Upload(context.Background(), &clip.Clip{Title: "Clip"})
	require.Error(t, err)
	assert.True(t, platform.IsAuthError(err))
}

func TestBuildVideo(t *testing.T) {
	c := &clip.Clip{
		Title:       "My Clip",
		Description: "A description",
		Tags:        []string{"Go", "go", "Música"},
		Privacy:     clip.PrivacyUnlisted,
	}

	video := buildVideo(c)
	assert.Equal(t, "My Clip", video.Snippet.Title)
	assert.Equal(t, "A description", video.Snippet.Description)
	assert.Equal(t, defaultCategoryID, video.Snippet.CategoryId)
	assert.Equal(t, []string{"go", "musica"}, video.Snippet.Tags)
	assert.Equal(t, "unlisted", video.Status.PrivacyStatus)
	assert.Empty(t, video.Status.PublishAt)
	assert.False(t, video.Status.MadeForKids)
}

func TestBuildVideoDefaultsToPublic(t *testing.T) {
	video := buildVideo(&clip.Clip{Title: "No Privacy Set"})
	assert.Equal(t, "public", video.Status.PrivacyStatus)
}

func TestBuildVideoScheduledStaysPrivate(t *testing.T) {
	publishAt := time.Date(2026, time.April, 1, 18, 0, 0, 0, time.UTC)
	c := &clip.Clip{
		Title:     "Scheduled Clip",
		Privacy:   clip.PrivacyPublic,
		PublishAt: publishAt,
	}

	video := buildVideo(c)
	assert.Equal(t, "private", video.Status.PrivacyStatus)
	assert.Equal(t, "2026-04-01T18:00:00Z", video.Status.PublishAt)
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{
			name: "lowercases and trims",
			tags: []string{" Tech ", "GOLANG"},
			want: []string{"tech", "golang"},
		},
		{
			name: "drops duplicates",
			tags: []string{"news", "News", "NEWS"},
			want: []string{"news"},
		},
		{
			name: "replaces accented characters",
			tags: []string{"español", "Canción"},
			want: []string{"espanol", "cancion"},
		},
		{
			name: "drops empty and oversized tags",
			tags: []string{"", "  ", strings.Repeat("x", 31), "ok"},
			want: []string{"ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTags(tt.tags))
		})
	}
}

func TestNormalizeTagsCapsAtThirty(t *testing.T) {
	var tags []string
	for i := 0; i < 40; i++ {
		tags = append(tags, fmt.Sprintf("tag%d", i))
	}
	assert.Len(t, normalizeTags(tags), 30)
}

func TestWrapAPIError(t *testing.T) {
	unauthorized := &googleapi.Error{Code: 401, Message: "Invalid Credentials"}
	err := wrapAPIError("failed to upload video", unauthorized)
	assert.True(t, platform.IsAuthError(err))
	assert.Contains(t, err.Error(), "failed to upload video")

	// A 403 without a quota reason means the token lacks access.
	forbidden := &googleapi.Error{
		Code:    403,
		Message: "Insufficient Permission",
		Errors:  []googleapi.ErrorItem{{Reason: "insufficientPermissions"}},
	}
	err = wrapAPIError("failed to upload video", forbidden)
	assert.True(t, platform.IsAuthError(err))

	// Quota and rate-limit 403s are not cured by re-authenticating.
	quota := &googleapi.Error{
		Code:    403,
		Message: "Quota Exceeded",
		Errors:  []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
	}
	err = wrapAPIError("failed to upload video", quota)
	assert.False(t, platform.IsAuthError(err))

	rateLimited := &googleapi.Error{
		Code:    403,
		Message: "Rate Limit Exceeded",
		Errors:  []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}},
	}
	err = wrapAPIError("failed to upload video", rateLimited)
	assert.False(t, platform.IsAuthError(err))

	serverErr := &googleapi.Error{Code: 500, Message: "Backend Error"}
	err = wrapAPIError("failed to upload video", serverErr)
	assert.False(t, platform.IsAuthError(err))

	plain := errors.New("connection reset")
	err = wrapAPIError("failed to upload video", plain)
	assert.False(t, platform.IsAuthError(err))
	assert.ErrorIs(t, err, plain)
}
