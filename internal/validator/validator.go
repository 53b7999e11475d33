// Package validator runs pre-flight checks on manifests and platform
// credentials before an upload run.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clipcast/clipcast/internal/clip"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/utils"
)

// credentialEnvVars maps each platform to the environment variables it
// reads credentials from. Used for hints in warning messages.
var credentialEnvVars = map[string][]string{
	"youtube":   {"GOOGLE_APPLICATION_CREDENTIALS"},
	"tiktok":    {"TIKTOK_CLIENT_KEY", "TIKTOK_CLIENT_SECRET"},
	"instagram": {"INSTAGRAM_ACCESS_TOKEN", "INSTAGRAM_ACCOUNT_ID"},
	"linkedin":  {"LINKEDIN_ACCESS_TOKEN", "LINKEDIN_AUTHOR_URN"},
	"twitter":   {"TWITTER_ACCESS_TOKEN"},
}

// ValidateManifest checks every clip in the manifest: required fields,
// video file present on disk within maxFileSize bytes, and all target
// platforms registered. A non-positive maxFileSize means the clip
// package default.
func ValidateManifest(manifest *clip.Manifest, registry *platform.Registry, maxFileSize int64) error {
	if len(manifest.Clips) == 0 {
		return fmt.Errorf("manifest contains no clips")
	}

	for i, c := range manifest.Clips {
		if err := c.Validate(maxFileSize); err != nil {
			return fmt.Errorf("clip %d (%s): %w", i+1, c.Title, err)
		}
		if len(c.Platforms) == 0 {
			return fmt.Errorf("clip %d (%s): no target platforms", i+1, c.Title)
		}
		for _, name := range c.Platforms {
			if _, err := registry.Get(name); err != nil {
				return fmt.Errorf("clip %d (%s): %w", i+1, c.Title, err)
			}
		}

		utils.LogVerbose("✓ %s (%d bytes, %s)", c.Title, c.FileSize, strings.Join(c.Platforms, ", "))
	}

	return nil
}

// ValidateCredentials checks that every named platform has credentials
// configured. With no names it checks all registered platforms.
func ValidateCredentials(registry *platform.Registry, names []string) error {
	if len(names) == 0 {
		names = registry.Names()
	}

	var missing []string
	for _, name := range names {
		p, err := registry.Get(name)
		if err != nil {
			return err
		}
		if !p.IsConfigured() {
			missing = append(missing, name)
			if vars, ok := credentialEnvVars[name]; ok {
				utils.LogWarning("%s is not configured (set %s)", name, strings.Join(vars, ", "))
			} else {
				utils.LogWarning("%s is not configured", name)
			}
			continue
		}

		utils.LogVerbose("✓ %s credentials present", name)
	}

	if len(missing) > 0 {
		return fmt.Errorf("platforms missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// TargetPlatforms returns the distinct platform names referenced by
// the manifest, sorted.
func TargetPlatforms(manifest *clip.Manifest) []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(manifest.Clips))
	for _, c := range manifest.Clips {
		for _, name := range c.Platforms {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
