// Package youtube uploads clips through the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/clipcast/clipcast/internal/auth"
	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/utils"
)

// Required OAuth scopes for the YouTube API
var requiredScopes = []string{
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube.force-ssl",
}

// defaultCategoryID is "People & Blogs".
const defaultCategoryID = "22"

// Service implements the platform interface for YouTube.
type Service struct {
	credentialsPath string
	callbackPort    int
	client          *youtube.Service
}

// New creates a YouTube service. Credentials come from the
// GOOGLE_APPLICATION_CREDENTIALS environment variable.
func New() *Service {
	return &Service{
		credentialsPath: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		callbackPort:    8080,
	}
}

// Name returns the platform identifier
func (s *Service) Name() string { return "youtube" }

// IsConfigured reports whether OAuth client credentials are available
func (s *Service) IsConfigured() bool {
	return s.credentialsPath != ""
}

// Authenticate establishes an authorized YouTube client, running the
// browser OAuth flow when no valid stored token exists.
func (s *Service) Authenticate(ctx context.Context) error {
	credentials, err := os.ReadFile(s.credentialsPath)
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(credentials, requiredScopes...)
	if err != nil {
		return fmt.Errorf("failed to create OAuth config: %w", err)
	}

	tokenStorage, err := auth.NewTokenStorage()
	if err != nil {
		return fmt.Errorf("failed to initialize token storage: %w", err)
	}

	token, err := tokenStorage.LoadToken(s.Name())
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil || !token.Valid() {
		callbackServer := auth.NewCallbackServer()
		if err := callbackServer.Start(s.callbackPort); err != nil {
			return fmt.Errorf("failed to start callback server: %w", err)
		}
		defer func() {
			if err := callbackServer.Stop(); err != nil {
				utils.LogWarning("Failed to stop callback server: %v", err)
			}
		}()

		config.RedirectURL = fmt.Sprintf("http://localhost:%d", s.callbackPort)

		authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
		if err := auth.OpenURL(authURL); err != nil {
			utils.LogWarning("Failed to open browser automatically: %v", err)
			utils.LogInfo("Please open the following URL in your browser: %s", authURL)
		}

		code, err := callbackServer.WaitForCode(ctx)
		if err != nil {
			return fmt.Errorf("failed to receive authorization code: %w", err)
		}

		token, err = config.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to exchange authorization code: %w", err)
		}

		if err := tokenStorage.SaveToken(s.Name(), token); err != nil {
			utils.LogWarning("Failed to save token: %v", err)
		}
	} else {
		utils.LogInfo("Using existing authorization token")
	}

	client, err := youtube.NewService(ctx, option.WithTokenSource(config.TokenSource(ctx, token)))
	if err != nil {
		return fmt.Errorf("failed to create YouTube service: %w", err)
	}

	s.client = client
	return nil
}

// Upload sends the clip to YouTube and returns the video ID.
func (s *Service) Upload(ctx context.Context, c *clip.Clip) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("youtube session not initialized: %w", platform.ErrAuthFailed)
	}

	file, err := os.Open(c.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to open video file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			utils.LogWarning("Failed to close video file: %v", err)
		}
	}()

	call := s.client.Videos.Insert([]string{"snippet", "status"}, buildVideo(c))
	call.NotifySubscribers(false)
	response, err := call.Media(file).Context(ctx).Do()
	if err != nil {
		return "", wrapAPIError("failed to upload video", err)
	}

	if c.ThumbnailPath != "" {
		s.setThumbnail(ctx, response.Id, c.ThumbnailPath)
	}

	return response.Id, nil
}

// URL returns the public watch URL for a video ID
func (s *Service) URL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

// setThumbnail uploads a custom thumbnail. Thumbnail failures are
// logged but do not fail the upload.
func (s *Service) setThumbnail(ctx context.Context, videoID, thumbnailPath string) {
	thumb, err := os.Open(thumbnailPath)
	if err != nil {
		utils.LogWarning("Failed to open thumbnail file: %v", err)
		return
	}
	defer func() {
		if err := thumb.Close(); err != nil {
			utils.LogWarning("Failed to close thumbnail file: %v", err)
		}
	}()

	if _, err := s.client.Thumbnails.Set(videoID).Media(thumb).Context(ctx).Do(); err != nil {
		utils.LogWarning("Failed to set thumbnail: %v", err)
	} else {
		utils.LogVerbose("Set custom thumbnail for video %s", videoID)
	}
}

// buildVideo maps a clip onto the YouTube video resource. Scheduled
// clips must stay private until their publish time.
func buildVideo(c *clip.Clip) *youtube.Video {
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       c.Title,
			Description: c.Description,
			CategoryId:  defaultCategoryID,
			Tags:        normalizeTags(c.Tags),
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: privacyStatus(c),
			MadeForKids:   false,
		},
	}

	if !c.PublishAt.IsZero() {
		video.Status.PrivacyStatus = string(clip.PrivacyPrivate)
		video.Status.PublishAt = c.PublishAt.Format(time.RFC3339)
	}

	return video
}

func privacyStatus(c *clip.Clip) string {
	if c.Privacy == "" {
		return string(clip.PrivacyPublic)
	}
	return string(c.Privacy)
}

// cleanTag removes special characters and converts to lowercase
func cleanTag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.ToLower(tag)
	replacements := map[string]string{
		"á": "a", "é": "e", "í": "i", "ó": "o", "ú": "u",
		"ñ": "n", "ü": "u",
	}
	for old, new := range replacements {
		tag = strings.ReplaceAll(tag, old, new)
	}
	return tag
}

// normalizeTags cleans tags and enforces YouTube's limits: at most 30
// tags, each at most 30 characters, no duplicates.
func normalizeTags(tags []string) []string {
	seenTags := make(map[string]bool)
	var cleanedTags []string

	for _, tag := range tags {
		cleaned := cleanTag(tag)
		if cleaned != "" && len(cleaned) <= 30 && !seenTags[cleaned] {
			seenTags[cleaned] = true
			cleanedTags = append(cleanedTags, cleaned)
		}
	}

	if len(cleanedTags) > 30 {
		cleanedTags = cleanedTags[:30]
	}

	return cleanedTags
}

// wrapAPIError marks unauthorized responses as authentication
// failures so the upload pipeline re-authenticates before retrying.
func wrapAPIError(msg string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && isAuthError(apiErr) {
		return fmt.Errorf("%s: %v: %w", msg, err, platform.ErrAuthFailed)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// isAuthError reports whether the API error warrants re-authentication.
// 401 always does. 403 does too, except quota and rate-limit
// rejections, which a fresh token cannot cure.
func isAuthError(apiErr *googleapi.Error) bool {
	switch apiErr.Code {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			reason := strings.ToLower(item.Reason)
			if strings.Contains(reason, "quota") || strings.Contains(reason, "ratelimit") {
				return false
			}
		}
		return true
	}
	return false
}
