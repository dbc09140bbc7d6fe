package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homepanel/homepanel/pkg/agent"
	"github.com/homepanel/homepanel/pkg/telegram"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot (default)",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Print banner
	fmt.Fprintf(cmd.OutOrStdout(), `
  ┬ ┬┌─┐┌┬┐┌─┐┌─┐┌─┐┌┐┌┌─┐┬
  ├─┤│ ││││├┤ ├─┘├─┤│││├┤ │
  ┴ ┴└─┘┴ ┴└─┘┴  ┴ ┴┘└┘└─┘┴─┘
  🖥 homepanel %s (%s)

`, version, commit[:min(7, len(commit))])

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration error", zap.Error(err))
		return err
	}

	client, err := telegram.New(cfg.BotToken, logger)
	if err != nil {
		return err
	}

	a, err := agent.New(cfg, agent.WithLogger(logger), agent.WithMessenger(client))
	if err != nil {
		logger.Error("Failed to create agent", zap.Error(err))
		return err
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		logger.Error("Failed to start agent", zap.Error(err))
		return err
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
		return err
	}
	return nil
}
