// Package linkedin uploads clips as native video posts through the
// LinkedIn REST API.
//
// Publishing registers an upload slot for a video asset, sends the
// bytes to the returned URL, then creates a UGC post referencing the
// asset.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/utils"
)

const defaultBaseURL = "https://api.linkedin.com"

// Service implements the platform interface for LinkedIn.
type Service struct {
	accessToken string
	authorURN   string

	baseURL string
	http    *http.Client
}

// New creates a LinkedIn service. Credentials come from the
// LINKEDIN_ACCESS_TOKEN and LINKEDIN_AUTHOR_URN environment variables
// (the author is a member or organization URN such as
// "urn:li:person:abc123").
func New() *Service {
	return &Service{
		accessToken: os.Getenv("LINKEDIN_ACCESS_TOKEN"),
		authorURN:   os.Getenv("LINKEDIN_AUTHOR_URN"),
		baseURL:     defaultBaseURL,
		http:        &http.Client{Timeout: 5 * time.Minute},
	}
}

// Name returns the platform identifier
func (s *Service) Name() string { return "linkedin" }

// IsConfigured reports whether an access token and author URN are available
func (s *Service) IsConfigured() bool {
	return s.accessToken != "" && s.authorURN != ""
}

// Authenticate verifies the configured token is still accepted.
// LinkedIn tokens are issued out of band, so there is no interactive
// flow.
func (s *Service) Authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v2/me", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to verify token: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("token rejected with status 401: %w", platform.ErrAuthFailed)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token verification failed with status %d: %s", resp.StatusCode, string(body))
	}

	utils.LogVerbose("Verified LinkedIn token for %s", s.authorURN)
	return nil
}

// Upload publishes the clip as a video post and returns the post URN.
func (s *Service) Upload(ctx context.Context, c *clip.Clip) (string, error) {
	if s.accessToken == "" {
		return "", fmt.Errorf("linkedin session not initialized: %w", platform.ErrAuthFailed)
	}

	asset, uploadURL, err := s.registerUpload(ctx)
	if err != nil {
		return "", err
	}

	if err := s.putVideo(ctx, uploadURL, c.FilePath); err != nil {
		return "", err
	}

	return s.createPost(ctx, asset, c)
}

// URL returns the public post URL for a post URN
func (s *Service) URL(postURN string) string {
	return fmt.Sprintf("https://www.linkedin.com/feed/update/%s/", postURN)
}

func (s *Service) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
}

// registerUpload reserves an upload slot for a feed video and returns
// the asset URN plus the upload URL.
func (s *Service) registerUpload(ctx context.Context) (string, string, error) {
	body := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-video"},
			"owner":   s.authorURN,
			"serviceRelationships": []map[string]interface{}{
				{
					"relationshipType": "OWNER",
					"identifier":       "urn:li:userGeneratedContent",
				},
			},
		},
	}

	var result struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := s.postJSON(ctx, s.baseURL+"/v2/assets?action=registerUpload", body, &result); err != nil {
		return "", "", fmt.Errorf("failed to register upload: %w", err)
	}

	var uploadURL string
	for _, mechanism := range result.Value.UploadMechanism {
		if mechanism.UploadURL != "" {
			uploadURL = mechanism.UploadURL
			break
		}
	}
	if result.Value.Asset == "" || uploadURL == "" {
		return "", "", fmt.Errorf("register response missing asset or upload URL")
	}

	return result.Value.Asset, uploadURL, nil
}

// putVideo streams the file to the upload URL.
func (s *Service) putVideo(ctx context.Context, uploadURL, filePath string) error {
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = fileInfo.Size()
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send upload request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close upload response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload request failed with status: %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

// createPost publishes a UGC post referencing the uploaded asset and
// returns the post URN.
func (s *Service) createPost(ctx context.Context, asset string, c *clip.Clip) (string, error) {
	body := map[string]interface{}{
		"author":         s.authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary": map[string]interface{}{
					"text": buildCommentary(c),
				},
				"shareMediaCategory": "VIDEO",
				"media": []map[string]interface{}{
					{
						"status": "READY",
						"media":  asset,
						"title": map[string]interface{}{
							"text": c.Title,
						},
					},
				},
			},
		},
		"visibility": map[string]interface{}{
			"com.linkedin.ugc.MemberNetworkVisibility": visibility(c),
		},
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := s.postJSON(ctx, s.baseURL+"/v2/ugcPosts", body, &result); err != nil {
		return "", fmt.Errorf("failed to create post: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("post response missing id")
	}

	return result.ID, nil
}

// visibility maps the clip privacy onto LinkedIn's network
// visibility. Anything narrower than public stays connections-only.
func visibility(c *clip.Clip) string {
	if c.Privacy == "" || c.Privacy == clip.PrivacyPublic {
		return "PUBLIC"
	}
	return "CONNECTIONS"
}

// buildCommentary composes the post text from the clip title,
// description, and tags rendered as hashtags.
func buildCommentary(c *clip.Clip) string {
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

// postJSON sends an authorized POST with a JSON body and decodes the
// JSON response into out.
func (s *Service) postJSON(ctx context.Context, requestURL string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("request rejected with status 401: %w", platform.ErrAuthFailed)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("request failed with status: %d, body: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
