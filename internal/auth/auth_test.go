package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestStorage(t *testing.T) *TokenStorage {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "auth-test")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Errorf("failed to remove temp directory: %v", err)
		}
	})

	storage, err := NewTokenStorageAt(tmpDir)
	require.NoError(t, err)
	return storage
}

func TestTokenStorageRoundTrip(t *testing.T) {
	storage := newTestStorage(t)

	token := &oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}

	require.NoError(t, storage.SaveToken("youtube", token))

	loaded, err := storage.LoadToken("youtube")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, token.AccessToken, loaded.AccessToken)
	assert.Equal(t, token.RefreshToken, loaded.RefreshToken)
	assert.True(t, loaded.Valid())

	// Token files must not be world readable.
	info, err := os.Stat(storage.TokenPath("youtube"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestTokenStorageMissingToken(t *testing.T) {
	storage := newTestStorage(t)

	loaded, err := storage.LoadToken("tiktok")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestTokenStorageDelete(t *testing.T) {
	storage := newTestStorage(t)

	require.NoError(t, storage.SaveToken("twitter", &oauth2.Token{AccessToken: "tok"}))
	require.NoError(t, storage.DeleteToken("twitter"))

	loaded, err := storage.LoadToken("twitter")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting again is not an error.
	assert.NoError(t, storage.DeleteToken("twitter"))
}

func TestTokenStorageCorruptFile(t *testing.T) {
	storage := newTestStorage(t)

	require.NoError(t, os.WriteFile(storage.TokenPath("linkedin"), []byte("{not json"), 0600))

	_, err := storage.LoadToken("linkedin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal token")
}

func TestCallbackServerDeliversCode(t *testing.T) {
	server := NewCallbackServer()
	require.NoError(t, server.Start(0))
	defer func() {
		if err := server.Stop(); err != nil {
			t.Errorf("failed to stop callback server: %v", err)
		}
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/?code=abc123", server.Addr()))
	require.NoError(t, err)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Errorf("failed to close response body: %v", err)
		}
	}()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "return to clipcast")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	code, err := server.WaitForCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", code)
}

func TestCallbackServerRejectsMissingCode(t *testing.T) {
	server := NewCallbackServer()
	require.NoError(t, server.Start(0))
	defer func() {
		if err := server.Stop(); err != nil {
			t.Errorf("failed to stop callback server: %v", err)
		}
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/", server.Addr()))
	require.NoError(t, err)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Errorf("failed to close response body: %v", err)
		}
	}()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWaitForCodeHonorsContext(t *testing.T) {
	server := NewCallbackServer()
	require.NoError(t, server.Start(0))
	defer func() {
		if err := server.Stop(); err != nil {
			t.Errorf("failed to stop callback server: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := server.WaitForCode(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
