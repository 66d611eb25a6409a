// Package cmd implements the CLI commands for the downloader.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yudee-19/video-downloader/internal/config"
	"github.com/Yudee-19/video-downloader/internal/logger"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "downloader",
	Short:   "Video download job queue and streaming service",
	Version: version,
	Long: `downloader accepts YouTube and Instagram URLs, runs downloads as background
jobs (single or batched, with optional trimming and object-storage upload)
and streams remuxed MP4 directly to clients without persisting anything.

Run "downloader serve" for the HTTP API and "downloader worker" for the
process that consumes the durable batch queue.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, text)")
}

// loadConfig reads the configuration and installs the default logger.
// Flags only override the file and environment when explicitly set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format := logger.Format(strings.ToLower(cfg.Logging.Format))
	if format != logger.FormatText {
		format = logger.FormatJSON
	}
	logger.SetDefault(logger.NewWithFormat(os.Stdout, level, format, ""))

	return cfg, nil
}
