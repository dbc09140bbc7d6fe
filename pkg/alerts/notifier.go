// Package alerts pushes one-shot notifications to the admin chat. It never
// touches dispatcher state.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/homepanel/homepanel/internal/metrics"
	"github.com/homepanel/homepanel/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrUnknownKind rejects alerts outside the allowlist
	ErrUnknownKind = errors.New("unknown alert kind")
	// ErrEmptyAlert rejects alerts with neither title nor message
	ErrEmptyAlert = errors.New("alert has no content")
	// ErrRateLimited means the alert was dropped by the limiter
	ErrRateLimited = errors.New("alert rate limit exceeded")
)

// maxAlertText keeps alerts well below the chat message limit
const maxAlertText = 1024

// Sender delivers a message. Only sending is required.
type Sender interface {
	Send(ctx context.Context, reply types.Reply) error
}

// Notifier renders alerts and sends them to one chat
type Notifier struct {
	sender  Sender
	chatID  int64
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Notifier
type Option func(*Notifier)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithRate limits alerts to r per second with the given burst. r <= 0
// disables limiting.
func WithRate(r float64, burst int) Option {
	return func(n *Notifier) {
		if r <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		n.limiter = rate.NewLimiter(rate.Limit(r), max(burst, 1))
	}
}

// NewNotifier creates a notifier for chatID
func NewNotifier(sender Sender, chatID int64, opts ...Option) *Notifier {
	n := &Notifier{
		sender:  sender,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(0.5), 5),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	n.logger = n.logger.Named("alerts")
	return n
}

// Notify validates, renders and sends an alert. source names the trigger
// (hook, redis, watchdog, cli) for logs and metrics.
func (n *Notifier) Notify(ctx context.Context, source string, alert types.Alert) error {
	if alert.Kind == "" {
		alert.Kind = types.AlertGeneric
	}
	if !alert.Kind.IsAllowed() {
		metrics.Alerts.WithLabelValues(source, "rejected").Inc()
		return fmt.Errorf("%w: %q", ErrUnknownKind, alert.Kind)
	}
	if strings.TrimSpace(alert.Title) == "" && strings.TrimSpace(alert.Message) == "" {
		metrics.Alerts.WithLabelValues(source, "rejected").Inc()
		return ErrEmptyAlert
	}
	if n.chatID <= 0 {
		metrics.Alerts.WithLabelValues(source, "rejected").Inc()
		return fmt.Errorf("no admin chat configured")
	}

	if !n.limiter.Allow() {
		metrics.Alerts.WithLabelValues(source, "dropped").Inc()
		n.logger.Warn("alert dropped by rate limiter",
			zap.String("source", source),
			zap.String("kind", string(alert.Kind)),
		)
		return ErrRateLimited
	}

	err := n.sender.Send(ctx, types.Reply{ChatID: n.chatID, Text: Render(alert)})
	if err != nil {
		metrics.Alerts.WithLabelValues(source, "failed").Inc()
		n.logger.Error("alert delivery failed", zap.String("source", source), zap.Error(err))
		return fmt.Errorf("send alert: %w", err)
	}

	metrics.Alerts.WithLabelValues(source, "sent").Inc()
	n.logger.Info("alert sent",
		zap.String("source", source),
		zap.String("kind", string(alert.Kind)),
	)
	return nil
}

var kindIcons = map[types.AlertKind]string{
	types.AlertTemperature:     "🔥",
	types.AlertContainerDown:   "🐳",
	types.AlertTorrentComplete: "✅",
	types.AlertGeneric:         "🔔",
}

var kindTitles = map[types.AlertKind]string{
	types.AlertTemperature:     "Temperature alert",
	types.AlertContainerDown:   "Container stopped",
	types.AlertTorrentComplete: "Download complete",
	types.AlertGeneric:         "Notification",
}

// Render formats an alert as chat HTML
func Render(alert types.Alert) string {
	title := strings.TrimSpace(alert.Title)
	if title == "" {
		title = kindTitles[alert.Kind]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>", kindIcons[alert.Kind], html.EscapeString(title))
	if msg := strings.TrimSpace(alert.Message); msg != "" {
		if len(msg) > maxAlertText {
			cut := maxAlertText
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
			msg = msg[:cut] + "…"
		}
		b.WriteString("\n")
		b.WriteString(html.EscapeString(msg))
	}
	if alert.Source != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>", html.EscapeString(alert.Source))
	}
	return b.String()
}
