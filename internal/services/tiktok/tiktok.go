// Package tiktok uploads clips through the TikTok Content Posting API.
//
// Uploads use the inbox flow: an init call reserves an upload slot,
// the video bytes go to the returned upload URL, then a status poll
// runs until TikTok finishes processing and the upload is completed.
package tiktok

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/clipcast/clipcast/internal/auth"
	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/utils"
)

const (
	defaultBaseURL     = "https://open.tiktokapis.com"
	defaultAuthBaseURL = "https://www.tiktok.com"
)

// oauthScopes are requested during the authorization flow.
var oauthScopes = []string{
	"user.info.basic",
	"video.upload",
	"video.list",
	"video.publish",
}

// Service implements the platform interface for TikTok.
type Service struct {
	clientKey    string
	clientSecret string
	accessToken  string

	baseURL      string
	authBaseURL  string
	callbackPort int
	pollInterval time.Duration
	maxPolls     int
	http         *http.Client
}

// New creates a TikTok service. Credentials come from the
// TIKTOK_CLIENT_KEY and TIKTOK_CLIENT_SECRET environment variables.
func New() *Service {
	return &Service{
		clientKey:    os.Getenv("TIKTOK_CLIENT_KEY"),
		clientSecret: os.Getenv("TIKTOK_CLIENT_SECRET"),
		baseURL:      defaultBaseURL,
		authBaseURL:  defaultAuthBaseURL,
		callbackPort: 8080,
		pollInterval: 10 * time.Second,
		maxPolls:     30,
		http:         &http.Client{Timeout: 5 * time.Minute},
	}
}

// Name returns the platform identifier
func (s *Service) Name() string { return "tiktok" }

// IsConfigured reports whether client credentials are available
func (s *Service) IsConfigured() bool {
	return s.clientKey != "" && s.clientSecret != ""
}

// Authenticate obtains an access token, reusing a stored one when it
// is still valid.
func (s *Service) Authenticate(ctx context.Context) error {
	storage, err := auth.NewTokenStorage()
	if err != nil {
		return fmt.Errorf("failed to initialize token storage: %w", err)
	}

	token, err := storage.LoadToken(s.Name())
	if err != nil {
		utils.LogWarning("Failed to load stored token: %v", err)
		token = nil
	}

	if token == nil || !token.Valid() {
		utils.LogInfo("No valid token found, starting OAuth flow...")
		token, err = s.performOAuthFlow(ctx)
		if err != nil {
			return fmt.Errorf("OAuth flow failed: %w", err)
		}
		if err := storage.SaveToken(s.Name(), token); err != nil {
			utils.LogWarning("Failed to save token: %v", err)
		}
	} else {
		utils.LogInfo("Using existing authorization token")
	}

	s.accessToken = token.AccessToken
	return nil
}

// Upload sends the clip through the inbox upload flow and returns the
// resulting video ID.
func (s *Service) Upload(ctx context.Context, c *clip.Clip) (string, error) {
	if s.accessToken == "" {
		return "", fmt.Errorf("tiktok session not initialized: %w", platform.ErrAuthFailed)
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
	size := fileInfo.Size()

	publishID, uploadURL, err := s.initUpload(ctx, size)
	if err != nil {
		return "", err
	}

	if err := s.putVideo(ctx, uploadURL, file, size); err != nil {
		return "", err
	}

	if err := s.awaitProcessing(ctx, publishID); err != nil {
		return "", err
	}

	videoID, err := s.completeUpload(ctx, publishID)
	if err != nil {
		return "", err
	}
	if videoID == "" {
		// Inbox deliveries may not carry a video ID yet; the publish
		// ID still identifies the upload.
		videoID = publishID
	}
	return videoID, nil
}

// URL returns the public video URL for a video ID
func (s *Service) URL(videoID string) string {
	return fmt.Sprintf("https://www.tiktok.com/video/%s", videoID)
}

// apiError is the error envelope TikTok returns on every endpoint.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

func (e apiError) ok() bool {
	return e.Code == "" || e.Code == "ok"
}

// initUpload reserves an upload slot and returns the publish ID plus
// the URL the video bytes must be sent to.
func (s *Service) initUpload(ctx context.Context, size int64) (string, string, error) {
	body := map[string]interface{}{
		"source_info": map[string]interface{}{
			"source":            "FILE_UPLOAD",
			"video_size":        size,
			"chunk_size":        size,
			"total_chunk_count": 1,
		},
	}

	var result struct {
		Data struct {
			PublishID string `json:"publish_id"`
			UploadURL string `json:"upload_url"`
		} `json:"data"`
		Error apiError `json:"error"`
	}

	if err := s.postJSON(ctx, s.baseURL+"/v2/post/publish/inbox/video/init/", body, &result); err != nil {
		return "", "", fmt.Errorf("init request failed: %w", err)
	}
	if !result.Error.ok() {
		return "", "", fmt.Errorf("init API error: %s - %s (log_id: %s)", result.Error.Code, result.Error.Message, result.Error.LogID)
	}
	if result.Data.UploadURL == "" {
		return "", "", fmt.Errorf("init response missing upload URL")
	}

	return result.Data.PublishID, result.Data.UploadURL, nil
}

// putVideo streams the file to the upload URL in a single chunk.
func (s *Service) putVideo(ctx context.Context, uploadURL string, file *os.File, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", size-1, size))

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send upload request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close upload response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload request failed with status: %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// awaitProcessing polls the status endpoint until the upload is
// accepted or fails.
func (s *Service) awaitProcessing(ctx context.Context, publishID string) error {
	for i := 0; i < s.maxPolls; i++ {
		var result struct {
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
			Error apiError `json:"error"`
		}

		body := map[string]interface{}{"publish_id": publishID}
		if err := s.postJSON(ctx, s.baseURL+"/v2/post/publish/status/fetch/", body, &result); err != nil {
			return fmt.Errorf("status request failed: %w", err)
		}
		if !result.Error.ok() {
			return fmt.Errorf("status API error: %s - %s (log_id: %s)", result.Error.Code, result.Error.Message, result.Error.LogID)
		}

		switch result.Data.Status {
		case "UPLOADED", "SEND_TO_USER_INBOX":
			return nil
		case "FAILED":
			return fmt.Errorf("video upload failed")
		}

		utils.LogVerbose("Upload %s still processing (status %q)", publishID, result.Data.Status)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}

	return fmt.Errorf("video still processing after %d status checks", s.maxPolls)
}

// completeUpload finalizes the inbox upload and returns the video ID
// when TikTok has already assigned one.
func (s *Service) completeUpload(ctx context.Context, publishID string) (string, error) {
	completeURL := fmt.Sprintf("%s/v2/post/publish/inbox/video/complete/?publish_id=%s", s.baseURL, url.QueryEscape(publishID))

	var result struct {
		Data struct {
			VideoID string `json:"video_id"`
		} `json:"data"`
		Error apiError `json:"error"`
	}

	if err := s.postJSON(ctx, completeURL, nil, &result); err != nil {
		return "", fmt.Errorf("complete request failed: %w", err)
	}
	if !result.Error.ok() {
		return "", fmt.Errorf("complete API error: %s - %s (log_id: %s)", result.Error.Code, result.Error.Message, result.Error.LogID)
	}

	return result.Data.VideoID, nil
}

// postJSON sends an authorized POST with a JSON body and decodes the
// JSON response into out.
func (s *Service) postJSON(ctx context.Context, requestURL string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

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
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status: %d, body: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// performOAuthFlow runs the browser authorization flow with PKCE and
// exchanges the resulting code for an access token.
func (s *Service) performOAuthFlow(ctx context.Context) (*oauth2.Token, error) {
	callbackServer := auth.NewCallbackServer()
	if err := callbackServer.Start(s.callbackPort); err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	defer func() {
		if err := callbackServer.Stop(); err != nil {
			utils.LogWarning("Failed to stop callback server: %v", err)
		}
	}()

	redirectURI := fmt.Sprintf("http://localhost:%d/callback", s.callbackPort)

	codeVerifier := generateCodeVerifier()
	codeChallenge := generateCodeChallenge(codeVerifier)

	// State parameter for CSRF protection.
	state := generateRandomString(32)

	authURL := fmt.Sprintf(
		"%s/v2/auth/authorize/?client_key=%s&scope=%s&response_type=code&redirect_uri=%s&state=%s&code_challenge=%s&code_challenge_method=S256",
		s.authBaseURL,
		url.QueryEscape(s.clientKey),
		url.QueryEscape(strings.Join(oauthScopes, ",")),
		url.QueryEscape(redirectURI),
		url.QueryEscape(state),
		url.QueryEscape(codeChallenge),
	)

	utils.LogInfo("Opening browser for TikTok authorization...")
	if err := auth.OpenURL(authURL); err != nil {
		utils.LogWarning("Failed to open browser automatically: %v", err)
		utils.LogInfo("Please open the following URL in your browser: %s", authURL)
	}

	utils.LogInfo("Waiting for authorization code from TikTok...")
	code, err := callbackServer.WaitForCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to receive authorization code: %w", err)
	}

	token, err := s.exchangeCodeForToken(ctx, code, codeVerifier, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	utils.LogInfo("Successfully obtained new access token")
	return token, nil
}

// exchangeCodeForToken exchanges an authorization code for an access token
func (s *Service) exchangeCodeForToken(ctx context.Context, code, codeVerifier, redirectURI string) (*oauth2.Token, error) {
	data := url.Values{}
	data.Set("client_key", s.clientKey)
	data.Set("client_secret", s.clientSecret)
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("code_verifier", codeVerifier)
	data.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/oauth/token/", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send token request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken      string `json:"access_token"`
		ExpiresIn        int    `json:"expires_in"`
		RefreshToken     string `json:"refresh_token"`
		TokenType        string `json:"token_type"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}

	if result.Error != "" {
		return nil, fmt.Errorf("API error: %s - %s", result.Error, result.ErrorDescription)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("no access token in response: %s", string(body))
	}

	expiry := time.Now().Add(time.Hour)
	if result.ExpiresIn > 0 {
		expiry = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	}

	return &oauth2.Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}, nil
}

// generateCodeVerifier generates a random string for use as a PKCE code verifier
func generateCodeVerifier() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
	const length = 128
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[mathrand.Intn(len(charset))]
	}
	return string(b)
}

// generateCodeChallenge generates a PKCE code challenge from the verifier
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(hash[:])
}

// generateRandomString generates a random string of the specified length
func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._~"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err) // This should never happen
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
