// Package twitter uploads clips as video tweets.
//
// Media goes through the chunked upload endpoint (INIT, APPEND,
// FINALIZE, then STATUS polling while the video is processed) and the
// finished media id is attached to a new tweet.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/utils"
)

const (
	defaultUploadBaseURL = "https://upload.twitter.com"
	defaultAPIBaseURL    = "https://api.twitter.com"

	defaultChunkSize = 4 * 1024 * 1024

	// tweetTextLimit is the maximum tweet length in characters.
	tweetTextLimit = 280
)

// Service implements the platform interface for Twitter.
type Service struct {
	accessToken string

	uploadBaseURL string
	apiBaseURL    string
	chunkSize     int64
	pollInterval  time.Duration
	maxPolls      int
	http          *http.Client
}

// New creates a Twitter service. The access token comes from the
// TWITTER_ACCESS_TOKEN environment variable.
func New() *Service {
	return &Service{
		accessToken:   os.Getenv("TWITTER_ACCESS_TOKEN"),
		uploadBaseURL: defaultUploadBaseURL,
		apiBaseURL:    defaultAPIBaseURL,
		chunkSize:     defaultChunkSize,
		pollInterval:  10 * time.Second,
		maxPolls:      30,
		http:          &http.Client{Timeout: 5 * time.Minute},
	}
}

// Name returns the platform identifier
func (s *Service) Name() string { return "twitter" }

// IsConfigured reports whether an access token is available
func (s *Service) IsConfigured() bool {
	return s.accessToken != ""
}

// Authenticate verifies the configured token is still accepted.
func (s *Service) Authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBaseURL+"/2/users/me", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

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

	utils.LogVerbose("Verified Twitter token")
	return nil
}

// Upload publishes the clip as a video tweet and returns the tweet id.
func (s *Service) Upload(ctx context.Context, c *clip.Clip) (string, error) {
	if s.accessToken == "" {
		return "", fmt.Errorf("twitter session not initialized: %w", platform.ErrAuthFailed)
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

	fileInfo, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}

	mediaID, err := s.initUpload(ctx, fileInfo.Size())
	if err != nil {
		return "", err
	}

	if err := s.appendChunks(ctx, mediaID, file); err != nil {
		return "", err
	}

	if err := s.finalizeUpload(ctx, mediaID); err != nil {
		return "", err
	}

	return s.postTweet(ctx, mediaID, buildText(c))
}

// URL returns the public tweet URL for a tweet id
func (s *Service) URL(tweetID string) string {
	return fmt.Sprintf("https://twitter.com/i/web/status/%s", tweetID)
}

// processingInfo reports the server-side state of an uploaded video.
type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *processingInfo) failure() string {
	if p.Error == nil {
		return "unknown error"
	}
	return fmt.Sprintf("%s: %s", p.Error.Name, p.Error.Message)
}

type mediaResponse struct {
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *processingInfo `json:"processing_info"`
}

// initUpload reserves a media id for a chunked video upload.
func (s *Service) initUpload(ctx context.Context, totalBytes int64) (string, error) {
	values := url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.FormatInt(totalBytes, 10)},
		"media_type":     {"video/mp4"},
		"media_category": {"tweet_video"},
	}

	result, err := s.postMediaForm(ctx, values)
	if err != nil {
		return "", fmt.Errorf("failed to initialize upload: %w", err)
	}
	if result.MediaIDString == "" {
		return "", fmt.Errorf("init response missing media id")
	}

	utils.LogVerbose("Initialized Twitter media upload %s (%d bytes)", result.MediaIDString, totalBytes)
	return result.MediaIDString, nil
}

// appendChunks streams the file to the media endpoint one chunk at a
// time.
func (s *Service) appendChunks(ctx context.Context, mediaID string, file *os.File) error {
	buf := make([]byte, s.chunkSize)
	for segment := 0; ; segment++ {
		n, err := file.Read(buf)
		if n > 0 {
			if err := s.appendChunk(ctx, mediaID, segment, buf[:n]); err != nil {
				return fmt.Errorf("failed to append chunk %d: %w", segment, err)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read video file: %w", err)
		}
	}
}

func (s *Service) appendChunk(ctx context.Context, mediaID string, segment int, chunk []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("command", "APPEND"); err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}
	if err := writer.WriteField("media_id", mediaID); err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}
	if err := writer.WriteField("segment_index", strconv.Itoa(segment)); err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}
	part, err := writer.CreateFormFile("media", "chunk")
	if err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.uploadBaseURL+"/1.1/media/upload.json", &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("request rejected with status 401: %w", platform.ErrAuthFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status: %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// finalizeUpload closes the chunked upload and waits for server-side
// video processing when the API signals it.
func (s *Service) finalizeUpload(ctx context.Context, mediaID string) error {
	values := url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	}

	result, err := s.postMediaForm(ctx, values)
	if err != nil {
		return fmt.Errorf("failed to finalize upload: %w", err)
	}

	info := result.ProcessingInfo
	if info == nil || info.State == "succeeded" {
		return nil
	}
	if info.State == "failed" {
		return fmt.Errorf("video processing failed: %s", info.failure())
	}

	return s.awaitProcessing(ctx, mediaID)
}

// awaitProcessing polls the STATUS command until the video is ready.
func (s *Service) awaitProcessing(ctx context.Context, mediaID string) error {
	for attempt := 0; attempt < s.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}

		requestURL := fmt.Sprintf("%s/1.1/media/upload.json?command=STATUS&media_id=%s",
			s.uploadBaseURL, url.QueryEscape(mediaID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.accessToken)

		resp, err := s.http.Do(req)
		if err != nil {
			return fmt.Errorf("failed to check processing status: %w", err)
		}

		var result mediaResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&result)
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close response body: %v", err)
		}
		if decodeErr != nil {
			return fmt.Errorf("failed to decode status response: %w", decodeErr)
		}

		info := result.ProcessingInfo
		if info == nil || info.State == "succeeded" {
			return nil
		}
		if info.State == "failed" {
			return fmt.Errorf("video processing failed: %s", info.failure())
		}
		utils.LogVerbose("Twitter media %s still %s...", mediaID, info.State)
	}

	return fmt.Errorf("video still processing after %d status checks", s.maxPolls)
}

// postTweet creates the tweet carrying the uploaded media and returns
// its id.
func (s *Service) postTweet(ctx context.Context, mediaID, text string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"text": text,
		"media": map[string]interface{}{
			"media_ids": []string{mediaID},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("request rejected with status 401: %w", platform.ErrAuthFailed)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("request failed with status: %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("tweet response missing id")
	}

	return result.Data.ID, nil
}

// postMediaForm sends a form-encoded command to the chunked upload
// endpoint and decodes the JSON response.
func (s *Service) postMediaForm(ctx context.Context, values url.Values) (*mediaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.uploadBaseURL+"/1.1/media/upload.json", strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("request rejected with status 401: %w", platform.ErrAuthFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request failed with status: %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result mediaResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// buildText composes the tweet text from the clip title and tags,
// trimmed to the tweet character limit.
func buildText(c *clip.Clip) string {
	parts := []string{c.Title}

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

	text := strings.Join(parts, "\n\n")
	runes := []rune(text)
	if len(runes) > tweetTextLimit {
		text = string(runes[:tweetTextLimit])
	}
	return text
}
