package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipcast/clipcast/internal/config"
	"github.com/clipcast/clipcast/internal/utils"
)

var (
	// cfgPath is the command-line flag for an explicit config file
	cfgPath string

	// verbosityLevel is the command-line flag for setting the log level
	verbosityLevel string

	// logFilePath mirrors log output to a file when set
	logFilePath string

	// cfg is resolved once in the persistent pre-run and shared by all
	// subcommands
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "clipcast",
	Short: "A multi-platform video upload orchestrator for content creators",
	Long: `ClipCast publishes video clips to YouTube, Instagram, TikTok, LinkedIn,
and Twitter from YAML manifests, with per-platform rate limiting,
bounded retries, and scheduled uploads.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, err := utils.ExpandHomeDir(cfgPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Flags win over the config file and environment.
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = verbosityLevel
		}
		if cmd.Flags().Changed("log-file") {
			cfg.LogFile = logFilePath
		}

		utils.SetLogLevel(utils.LogLevelFromString(cfg.LogLevel))
		if cfg.LogFile != "" {
			logFile, err := utils.ExpandHomeDir(cfg.LogFile)
			if err != nil {
				return err
			}
			if err := utils.SetLogFile(logFile); err != nil {
				return err
			}
		}
		return nil
	},
}

func Execute() error {
	defer utils.CloseLogFile()
	return rootCmd.Execute()
}

func init() {
	// Initialize global flags
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to a config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&verbosityLevel, "log-level", "l", "normal",
		"Set the logging verbosity level: quiet, normal, verbose, debug")
	rootCmd.PersistentFlags().StringVar(&logFilePath, "log-file", "", "Mirror log output to a file")
}
