package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/homepanel/homepanel/internal/redis"
	"github.com/homepanel/homepanel/pkg/alerts"
	"github.com/homepanel/homepanel/pkg/config"
	"github.com/homepanel/homepanel/pkg/telegram"
	"github.com/homepanel/homepanel/pkg/types"
	"github.com/spf13/cobra"
)

const (
	viaTelegram = "telegram"
	viaRedis    = "redis"

	notifyTimeout = 15 * time.Second
)

var (
	notifyKind  string
	notifyTitle string
	notifyVia   string
)

var notifyCmd = &cobra.Command{
	Use:   "notify [message]",
	Short: "Send a one-shot alert to the admin chat",
	Long: `Send an alert to the admin chat, for use from shell hooks such as a
torrent client's "run on completion" or a container health script.

By default the alert goes straight to Telegram. With --via redis it is
published on the alert channel for a running homepanel to deliver.`,
	Example: `  homepanel notify --kind torrent_complete --title "Download complete" "%N"
  homepanel notify --via redis --kind container_down "jellyfin exited"`,
	RunE: runNotify,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.Flags().StringVar(&notifyKind, "kind", string(types.AlertGeneric), "alert kind: temperature, container_down, torrent_complete or generic")
	notifyCmd.Flags().StringVar(&notifyTitle, "title", "", "alert title (defaults to one derived from the kind)")
	notifyCmd.Flags().StringVar(&notifyVia, "via", viaTelegram, "delivery path: telegram or redis")
}

// buildAlert assembles and checks an alert from command line input
func buildAlert(kind, title string, args []string) (types.Alert, error) {
	alert := types.Alert{
		Kind:      types.AlertKind(strings.ToLower(strings.TrimSpace(kind))),
		Title:     strings.TrimSpace(title),
		Message:   strings.TrimSpace(strings.Join(args, " ")),
		Source:    "cli",
		Timestamp: time.Now().Unix(),
	}
	if alert.Kind == "" {
		alert.Kind = types.AlertGeneric
	}
	if !alert.Kind.IsAllowed() {
		return alert, fmt.Errorf("%w: %q", alerts.ErrUnknownKind, alert.Kind)
	}
	if alert.Title == "" && alert.Message == "" {
		return alert, alerts.ErrEmptyAlert
	}
	return alert, nil
}

// publishAlert puts an alert on the Redis alert channel and returns how many
// listeners received it
func publishAlert(ctx context.Context, redisURL, channel string, alert types.Alert) (int64, error) {
	if redisURL == "" {
		return 0, &config.ConfigError{Field: "REDIS_URL", Message: "required with --via redis"}
	}
	client, err := redis.NewClient(ctx, redisURL)
	if err != nil {
		return 0, err
	}
	defer client.Close()
	return client.PublishJSON(ctx, channel, alert)
}

func runNotify(cmd *cobra.Command, args []string) error {
	alert, err := buildAlert(notifyKind, notifyTitle, args)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), notifyTimeout)
	defer cancel()

	switch notifyVia {
	case viaRedis:
		n, err := publishAlert(ctx, cfg.RedisURL, cfg.AlertChannel, alert)
		if err != nil {
			return err
		}
		if n == 0 {
			cmd.PrintErrln("warning: no homepanel instance is listening on", cfg.AlertChannel)
		}
		return nil

	case viaTelegram:
		if cfg.BotToken == "" {
			return &config.ConfigError{Field: "BOT_TOKEN", Message: "bot token is required"}
		}
		if cfg.AdminID <= 0 {
			return &config.ConfigError{Field: "ADMIN_ID", Message: "admin user id is required (set ADMIN_ID)"}
		}
		client, err := telegram.New(cfg.BotToken, logger)
		if err != nil {
			return err
		}
		notifier := alerts.NewNotifier(client, cfg.AdminID, alerts.WithLogger(logger), alerts.WithRate(0, 0))
		return notifier.Notify(ctx, alert.Source, alert)

	default:
		return fmt.Errorf("unknown --via %q (want %s or %s)", notifyVia, viaTelegram, viaRedis)
	}
}
