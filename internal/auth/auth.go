// Package auth provides OAuth token persistence and the local
// callback server used by interactive platform authorization flows.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/oauth2"

	"github.com/clipcast/clipcast/internal/utils"
)

// TokenStorage handles storing and retrieving OAuth tokens
type TokenStorage struct {
	configDir string
}

// NewTokenStorage creates a token storage rooted at ~/.clipcast
func NewTokenStorage() (*TokenStorage, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewTokenStorageAt(filepath.Join(homeDir, ".clipcast"))
}

// NewTokenStorageAt creates a token storage rooted at the given directory
func NewTokenStorageAt(dir string) (*TokenStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("token storage directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return &TokenStorage{configDir: dir}, nil
}

// TokenPath returns the token file path for a platform
func (s *TokenStorage) TokenPath(platform string) string {
	return filepath.Join(s.configDir, fmt.Sprintf("%s_token.json", platform))
}

// SaveToken saves the OAuth token to disk
func (s *TokenStorage) SaveToken(platform string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(s.TokenPath(platform), data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// LoadToken loads the OAuth token from disk. A missing token file is
// not an error and returns (nil, nil).
func (s *TokenStorage) LoadToken(platform string) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.TokenPath(platform))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// DeleteToken removes the stored token for a platform, if any.
func (s *TokenStorage) DeleteToken(platform string) error {
	if err := os.Remove(s.TokenPath(platform)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// CallbackServer handles the OAuth redirect and hands back the
// authorization code.
type CallbackServer struct {
	codeChan chan string
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewCallbackServer creates a new OAuth callback server
func NewCallbackServer() *CallbackServer {
	return &CallbackServer{
		codeChan: make(chan string, 1),
	}
}

// Start begins listening on the specified port. Port 0 picks a free
// port, readable afterwards via Addr.
func (s *CallbackServer) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleCallback)
	s.server = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			utils.LogError("Callback server error: %v", err)
		}
	}()

	return nil
}

// handleCallback extracts the authorization code from the redirect
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "No authorization code received", http.StatusBadRequest)
		return
	}

	select {
	case s.codeChan <- code:
	default:
		// A code was already delivered; ignore duplicates.
	}

	w.Header().Set("Content-Type", "text/html")
	const page = `<!doctype html>
<html>
<head><title>clipcast</title></head>
<body style="font-family: sans-serif; margin: 4rem auto; max-width: 28rem; text-align: center">
<h1>Authorized</h1>
<p>You can close this window and return to clipcast.</p>
</body>
</html>`
	if _, err := fmt.Fprint(w, page); err != nil {
		utils.LogWarning("Failed to write response: %v", err)
	}
}

// WaitForCode blocks until the authorization code arrives or the
// context is cancelled.
func (s *CallbackServer) WaitForCode(ctx context.Context) (string, error) {
	select {
	case code := <-s.codeChan:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop stops the callback server
func (s *CallbackServer) Stop() error {
	if s.server != nil {
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("failed to stop callback server: %w", err)
		}
		s.wg.Wait()
	}
	return nil
}

// Addr returns the address the server is listening on
func (s *CallbackServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// OpenURL opens the specified URL in the default browser
func OpenURL(url string) error {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("cannot open URL %s on this platform", url)
	}
	return err
}
