package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHomeDir expands a path that starts with "~/" to the user's
// home directory. Other paths pass through unchanged.
func ExpandHomeDir(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
