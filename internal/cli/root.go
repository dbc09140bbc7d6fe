// Package cli implements the homepanel command line.
package cli

import (
	"github.com/homepanel/homepanel/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "homepanel",
	Short: "Remote control and monitoring of a home server over Telegram",
	Long: `homepanel is a Telegram bot for one home server. It shows system
metrics, containers and torrent state, runs confirmed power and
maintenance actions, and forwards alerts to the admin chat.

Configuration comes from the environment, optionally preloaded from an
.env file (see --env-file).`,
	SilenceUsage: true,
	RunE:         runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "environment file to load (default .env)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads configuration and builds the logger
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
