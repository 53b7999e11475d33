package clip

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clipcast/clipcast/internal/utils"
)

// ManifestDefaults holds values applied to clips that omit them.
type ManifestDefaults struct {
	Privacy   PrivacyStatus `yaml:"privacy"`
	Platforms []string      `yaml:"platforms"`
	Tags      []string      `yaml:"tags"`
}

// Manifest represents the structure of an upload manifest file.
type Manifest struct {
	Defaults ManifestDefaults `yaml:"defaults"`
	Clips    []*Clip          `yaml:"clips"`
}

// ReadManifest reads and parses an upload manifest YAML file. Clips
// missing a privacy status, platform list, or tags inherit the
// manifest defaults, and clips without an explicit fileSize are sized
// from disk when the file exists.
func ReadManifest(filePath string) (*Manifest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for _, c := range manifest.Clips {
		if c.Privacy == "" {
			c.Privacy = manifest.Defaults.Privacy
		}
		if len(c.Platforms) == 0 {
			c.Platforms = append([]string(nil), manifest.Defaults.Platforms...)
		}
		if len(c.Tags) == 0 {
			c.Tags = append([]string(nil), manifest.Defaults.Tags...)
		}
		if c.FileSize == 0 && c.FilePath != "" {
			if info, err := os.Stat(c.FilePath); err == nil {
				c.FileSize = info.Size()
			}
		}
	}

	return &manifest, nil
}

// ListClips lists the clips in a manifest that can be uploaded.
func ListClips(manifest *Manifest) {
	utils.LogInfo("Clips queued for upload:")
	for i, c := range manifest.Clips {
		utils.LogInfo("%d. Title: %s", i+1, c.Title)
		utils.LogInfo("   File: %s (%d bytes)", c.FilePath, c.FileSize)
		utils.LogInfo("   Platforms: %v", c.Platforms)
		utils.LogInfo("   Privacy: %s", c.Privacy)
		utils.LogInfo("---")
	}
}
