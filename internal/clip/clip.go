// Package clip defines the video clip model shared by every upload path.
package clip

import (
	"fmt"
	"os"
	"time"
)

// DefaultMaxFileSize is the largest clip accepted for upload when no
// limit is configured (500MB).
const DefaultMaxFileSize int64 = 500 * 1024 * 1024

// PrivacyStatus controls the visibility of an uploaded clip.
type PrivacyStatus string

const (
	PrivacyPublic   PrivacyStatus = "public"
	PrivacyPrivate  PrivacyStatus = "private"
	PrivacyUnlisted PrivacyStatus = "unlisted"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Clip represents a single video clip queued for upload.
type Clip struct {
	Title         string        `yaml:"title"`
	Description   string        `yaml:"description"`
	FilePath      string        `yaml:"filePath"`
	FileSize      int64         `yaml:"fileSize"`
	ThumbnailPath string        `yaml:"thumbnailPath"`
	Tags          []string      `yaml:"tags"`
	Privacy       PrivacyStatus `yaml:"privacy"`
	PublishAt     time.Time     `yaml:"publishAt"`
	Platforms     []string      `yaml:"platforms"`

	// urls maps platform name to the public URL returned after a
	// successful upload. Clips are owned by one goroutine at a time,
	// so access is unsynchronized.
	urls map[string]string
}

// Validate checks that the clip is acceptable for upload: the title
// must be non-empty and the file must exist on disk within
// maxFileSize bytes. A non-positive maxFileSize falls back to
// DefaultMaxFileSize. Validation runs before any network interaction.
func (c *Clip) Validate(maxFileSize int64) error {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if c.Title == "" {
		return &ValidationError{
			Field:   "title",
			Message: "title is required",
		}
	}
	if c.FilePath == "" {
		return &ValidationError{
			Field:   "filePath",
			Message: "file path is required",
		}
	}

	info, err := os.Stat(c.FilePath)
	if err != nil {
		return &ValidationError{
			Field:   "filePath",
			Message: fmt.Sprintf("file does not exist: %s", c.FilePath),
			Err:     err,
		}
	}

	size := c.FileSize
	if size == 0 {
		size = info.Size()
	}
	if size > maxFileSize {
		return &ValidationError{
			Field:   "fileSize",
			Message: fmt.Sprintf("file size %d exceeds maximum %d bytes", size, maxFileSize),
		}
	}

	switch c.Privacy {
	case "", PrivacyPublic, PrivacyPrivate, PrivacyUnlisted:
	default:
		return &ValidationError{
			Field:   "privacy",
			Message: fmt.Sprintf("unknown privacy status %q", c.Privacy),
		}
	}
	return nil
}

// Clone returns a copy of the clip without recorded URLs.
func (c *Clip) Clone() *Clip {
	out := *c
	out.Tags = append([]string(nil), c.Tags...)
	out.Platforms = append([]string(nil), c.Platforms...)
	out.urls = nil
	return &out
}

// ForPlatform returns a derived clip with the same metadata targeting
// a single platform.
func (c *Clip) ForPlatform(name string) *Clip {
	out := c.Clone()
	out.Platforms = []string{name}
	return out
}

// SetURL records the public URL a platform assigned to this clip.
func (c *Clip) SetURL(platform, url string) {
	if c.urls == nil {
		c.urls = make(map[string]string)
	}
	c.urls[platform] = url
}

// URL returns the recorded URL for a platform, or "" if none.
func (c *Clip) URL(platform string) string {
	return c.urls[platform]
}

// URLs returns a copy of all recorded platform URLs.
func (c *Clip) URLs() map[string]string {
	out := make(map[string]string, len(c.urls))
	for k, v := range c.urls {
		out[k] = v
	}
	return out
}
