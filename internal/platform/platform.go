// Package platform defines the upload target abstraction and the registry
// used to dispatch clips to concrete services.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/clipcast/clipcast/internal/clip"
)

var (
	// ErrUnknownPlatform is returned when a name was never registered.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrNotConfigured indicates a platform is missing credentials.
	ErrNotConfigured = errors.New("platform credentials not configured")

	// ErrAuthFailed marks authentication or authorization failures.
	// Cached sessions are invalidated when an upload fails with it.
	ErrAuthFailed = errors.New("platform authentication failed")
)

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// Platform defines the interface that all upload targets must implement
type Platform interface {
	// Name returns the platform's unique identifier (e.g. "youtube")
	Name() string

	// IsConfigured reports whether credentials for the platform are present
	IsConfigured() bool

	// Authenticate establishes a session with the platform
	Authenticate(ctx context.Context) error

	// Upload publishes a clip and returns the platform's video ID
	Upload(ctx context.Context, c *clip.Clip) (string, error)

	// URL builds the public URL for a published video ID
	URL(videoID string) string
}

// Registry stores all available platforms
type Registry struct {
	platforms    map[string]Platform
	sync.RWMutex // Add thread safety
}

// NewRegistry creates a new platform registry
func NewRegistry() *Registry {
	return &Registry{
		platforms: make(map[string]Platform),
	}
}

// Register adds a platform to the registry
func (r *Registry) Register(p Platform) error {
	if p == nil {
		return fmt.Errorf("cannot register nil platform")
	}

	name := p.Name()
	if name == "" {
		return fmt.Errorf("platform name cannot be empty")
	}

	r.Lock()
	defer r.Unlock()

	if _, exists := r.platforms[name]; exists {
		return fmt.Errorf("platform %s is already registered", name)
	}

	r.platforms[name] = p
	return nil
}

// Get retrieves a platform by name
func (r *Registry) Get(name string) (Platform, error) {
	if name == "" {
		return nil, fmt.Errorf("platform name cannot be empty")
	}

	r.RLock()
	defer r.RUnlock()

	p, exists := r.platforms[name]
	if !exists {
		return nil, fmt.Errorf("platform %s: %w", name, ErrUnknownPlatform)
	}
	return p, nil
}

// Names returns the registered platform names in sorted order
func (r *Registry) Names() []string {
	r.RLock()
	defer r.RUnlock()
	return r.names()
}

// Len returns the number of registered platforms
func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.platforms)
}

// List returns a slice of all registered platforms
func (r *Registry) List() []Platform {
	r.RLock()
	defer r.RUnlock()

	platforms := make([]Platform, 0, len(r.platforms))
	for _, name := range r.names() {
		platforms = append(platforms, r.platforms[name])
	}
	return platforms
}

// names assumes the lock is held.
func (r *Registry) names() []string {
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
