package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/cul-updater/internal/config"
	"github.com/oshokin/cul-updater/internal/logger"
	"github.com/oshokin/cul-updater/internal/service/updater"
	"github.com/oshokin/cul-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// currentVersion overrides the built-in launcher version.
	currentVersion string
	// outputDir overrides the configured download directory.
	outputDir string
	// logLevel overrides the configured log level.
	logLevel string
	// strict turns a failed check into a non-zero exit status.
	strict bool

	// rootCmd checks for a newer launcher release and downloads it.
	rootCmd = &cobra.Command{
		Use:          "cul-updater",
		Short:        "Check for a newer launcher release and download it through mirrors",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			defer logger.Sync()

			options := &updater.Options{
				ConfigPath:     configPath,
				CurrentVersion: currentVersion,
				OutputDir:      outputDir,
				LogLevel:       logLevel,
			}

			_, err := updater.Run(ctx, options)
			if err != nil && strict {
				return err
			}

			// The launcher keeps starting even when the update check fails.
			return nil
		},
	}
)

// Execute runs the cul-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&currentVersion, "current-version", "", "launcher version to compare against (defaults to the built-in one)")
	flags.StringVar(&outputDir, "output-dir", "", "directory for the downloaded package (overrides output_dir)")
	flags.StringVar(&logLevel, "log-level", "", "minimum log level: debug, info, warn or error (overrides log_level)")
	flags.BoolVar(&strict, "strict", false, "exit with a non-zero status when the check fails")
}
