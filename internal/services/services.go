// Package services wires the built-in platform integrations into a
// registry.
package services

import (
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/services/instagram"
	"github.com/clipcast/clipcast/internal/services/linkedin"
	"github.com/clipcast/clipcast/internal/services/tiktok"
	"github.com/clipcast/clipcast/internal/services/twitter"
	"github.com/clipcast/clipcast/internal/services/youtube"
	"github.com/clipcast/clipcast/internal/utils"
)

// RegisterAll registers every built-in platform integration.
func RegisterAll(registry *platform.Registry) {
	platforms := []platform.Platform{
		youtube.New(),
		instagram.New(),
		tiktok.New(),
		linkedin.New(),
		twitter.New(),
	}

	for _, p := range platforms {
		if err := registry.Register(p); err != nil {
			utils.LogError("Failed to register platform %s: %v", p.Name(), err)
		}
	}
}
