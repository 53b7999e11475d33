package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/services"
	"github.com/clipcast/clipcast/internal/utils"
	"github.com/clipcast/clipcast/internal/validator"
)

var validateManifestPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a manifest and platform credentials",
	Long: `Check that a manifest parses, its clips point at uploadable files,
and the targeted platforms have credentials configured. Without a
manifest, credentials for all platforms are checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		utils.LogInfo("Validating setup...")

		registry := platform.NewRegistry()
		services.RegisterAll(registry)

		names := registry.Names()
		if validateManifestPath != "" {
			manifest, err := loadManifest(validateManifestPath)
			if err != nil {
				return err
			}
			if err := validator.ValidateManifest(manifest, registry, cfg.MaxFileSize); err != nil {
				return fmt.Errorf("manifest validation failed: %w", err)
			}
			utils.LogSuccess("Manifest: OK")

			// Only the platforms the manifest targets need credentials.
			names = validator.TargetPlatforms(manifest)
		}

		if err := validator.ValidateCredentials(registry, names); err != nil {
			return fmt.Errorf("credentials validation failed: %w", err)
		}
		utils.LogSuccess("Credentials: OK")

		utils.LogSuccess("Validation completed successfully")
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateManifestPath, "manifest", "m", "", "Path to an upload manifest to validate")
	rootCmd.AddCommand(validateCmd)
}
