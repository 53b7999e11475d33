// Package instagram uploads clips as Reels through the Instagram
// Graph API.
//
// Publishing is a three step flow: create a resumable media
// container, send the video bytes to the returned upload URI, then
// publish the container once processing finishes.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/utils"
)

const defaultBaseURL = "https://graph.facebook.com/v19.0"

// Service implements the platform interface for Instagram.
type Service struct {
	accessToken string
	accountID   string

	baseURL      string
	pollInterval time.Duration
	maxPolls     int
	http         *http.Client
}

// New creates an Instagram service. Credentials come from the
// INSTAGRAM_ACCESS_TOKEN and INSTAGRAM_ACCOUNT_ID environment
// variables; the account must be a business or creator account.
func New() *Service {
	return &Service{
		accessToken:  os.Getenv("INSTAGRAM_ACCESS_TOKEN"),
		accountID:    os.Getenv("INSTAGRAM_ACCOUNT_ID"),
		baseURL:      defaultBaseURL,
		pollInterval: 10 * time.Second,
		maxPolls:     30,
		http:         &http.Client{Timeout: 5 * time.Minute},
	}
}

// Name returns the platform identifier
func (s *Service) Name() string { return "instagram" }

// IsConfigured reports whether an access token and account ID are available
func (s *Service) IsConfigured() bool {
	return s.accessToken != "" && s.accountID != ""
}

// Authenticate verifies the configured token can read the account.
// Instagram uses long-lived tokens, so there is no interactive flow.
func (s *Service) Authenticate(ctx context.Context) error {
	requestURL := fmt.Sprintf("%s/%s?fields=id&access_token=%s", s.baseURL, s.accountID, url.QueryEscape(s.accessToken))

	var result struct {
		ID    string      `json:"id"`
		Error *graphError `json:"error"`
	}
	if err := s.getJSON(ctx, requestURL, &result); err != nil {
		return fmt.Errorf("failed to verify account access: %w", err)
	}
	if result.Error != nil {
		return wrapGraphError("failed to verify account access", result.Error)
	}
	if result.ID != s.accountID {
		return fmt.Errorf("token does not grant access to account %s", s.accountID)
	}

	utils.LogVerbose("Verified access to Instagram account %s", s.accountID)
	return nil
}

// Upload publishes the clip as a Reel and returns the media ID.
func (s *Service) Upload(ctx context.Context, c *clip.Clip) (string, error) {
	containerID, uploadURI, err := s.createContainer(ctx, c)
	if err != nil {
		return "", err
	}

	if err := s.uploadVideo(ctx, uploadURI, c.FilePath); err != nil {
		return "", err
	}

	if err := s.awaitProcessing(ctx, containerID); err != nil {
		return "", err
	}

	return s.publishContainer(ctx, containerID)
}

// URL returns the public reel URL for a media ID
func (s *Service) URL(mediaID string) string {
	return fmt.Sprintf("https://www.instagram.com/reel/%s/", mediaID)
}

// graphError is the error envelope the Graph API returns.
type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// wrapGraphError marks expired or revoked tokens as authentication
// failures so the upload pipeline re-authenticates before retrying.
func wrapGraphError(msg string, e *graphError) error {
	if e.Type == "OAuthException" || e.Code == 190 {
		return fmt.Errorf("%s: %s (code %d): %w", msg, e.Message, e.Code, platform.ErrAuthFailed)
	}
	return fmt.Errorf("%s: %s (code %d)", msg, e.Message, e.Code)
}

// createContainer opens a resumable Reels container and returns its
// ID plus the URI the video bytes must be sent to.
func (s *Service) createContainer(ctx context.Context, c *clip.Clip) (string, string, error) {
	form := url.Values{}
	form.Set("media_type", "REELS")
	form.Set("upload_type", "resumable")
	form.Set("caption", buildCaption(c))
	form.Set("access_token", s.accessToken)

	var result struct {
		ID    string      `json:"id"`
		URI   string      `json:"uri"`
		Error *graphError `json:"error"`
	}
	if err := s.postForm(ctx, fmt.Sprintf("%s/%s/media", s.baseURL, s.accountID), form, &result); err != nil {
		return "", "", fmt.Errorf("failed to create media container: %w", err)
	}
	if result.Error != nil {
		return "", "", wrapGraphError("failed to create media container", result.Error)
	}
	if result.ID == "" || result.URI == "" {
		return "", "", fmt.Errorf("container response missing id or upload uri")
	}

	return result.ID, result.URI, nil
}

// uploadVideo streams the file to the resumable upload URI.
func (s *Service) uploadVideo(ctx context.Context, uploadURI, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open video file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			utils.LogWarning("Failed to close video file: %v", err)
		}
	}()

	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURI, file)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = fileInfo.Size()
	req.Header.Set("Authorization", "OAuth "+s.accessToken)
	req.Header.Set("offset", "0")
	req.Header.Set("file_size", fmt.Sprintf("%d", fileInfo.Size()))

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send upload request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close upload response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read upload response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload request failed with status: %d, body: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Success bool        `json:"success"`
		Error   *graphError `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.Error != nil {
		return wrapGraphError("upload rejected", result.Error)
	}
	if !result.Success {
		return fmt.Errorf("upload was not accepted: %s", string(body))
	}

	return nil
}

// awaitProcessing polls the container until Instagram finishes
// transcoding the video.
func (s *Service) awaitProcessing(ctx context.Context, containerID string) error {
	requestURL := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", s.baseURL, containerID, url.QueryEscape(s.accessToken))

	for i := 0; i < s.maxPolls; i++ {
		var result struct {
			StatusCode string      `json:"status_code"`
			Error      *graphError `json:"error"`
		}
		if err := s.getJSON(ctx, requestURL, &result); err != nil {
			return fmt.Errorf("failed to fetch container status: %w", err)
		}
		if result.Error != nil {
			return wrapGraphError("failed to fetch container status", result.Error)
		}

		switch result.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("media container entered state %s", result.StatusCode)
		}

		utils.LogVerbose("Container %s still processing (status %q)", containerID, result.StatusCode)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}

	return fmt.Errorf("media container still processing after %d status checks", s.maxPolls)
}

// publishContainer publishes the finished container and returns the
// resulting media ID.
func (s *Service) publishContainer(ctx context.Context, containerID string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", s.accessToken)

	var result struct {
		ID    string      `json:"id"`
		Error *graphError `json:"error"`
	}
	if err := s.postForm(ctx, fmt.Sprintf("%s/%s/media_publish", s.baseURL, s.accountID), form, &result); err != nil {
		return "", fmt.Errorf("failed to publish media: %w", err)
	}
	if result.Error != nil {
		return "", wrapGraphError("failed to publish media", result.Error)
	}

	return result.ID, nil
}

// buildCaption composes the reel caption from the clip title,
// description, and tags rendered as hashtags.
func buildCaption(c *clip.Clip) string {
	parts := []string{c.Title}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}

	var hashtags []string
	for _, tag := range c.Tags {
		tag = strings.TrimSpace(strings.ReplaceAll(tag, " ", ""))
		if tag == "" {
			continue
		}
		hashtags = append(hashtags, "#"+strings.ToLower(tag))
	}
	if len(hashtags) > 0 {
		parts = append(parts, strings.Join(hashtags, " "))
	}

	return strings.Join(parts, "\n\n")
}

func (s *Service) postForm(ctx context.Context, requestURL string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.doJSON(req, out)
}

func (s *Service) getJSON(ctx context.Context, requestURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return s.doJSON(req, out)
}

// doJSON executes the request and decodes the response body. Graph
// error envelopes ride on non-2xx responses too, so the body is
// decoded regardless of status.
func (s *Service) doJSON(req *http.Request, out interface{}) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
