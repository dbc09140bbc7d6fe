package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/homepanel/homepanel/pkg/alerts"
	"github.com/homepanel/homepanel/pkg/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AlertSource is the source name recorded for alerts read from Redis
const AlertSource = "redis"

// AlertListener subscribes to a Redis Pub/Sub channel and forwards every
// alert published there to the admin chat. It never touches the dispatcher.
type AlertListener struct {
	subscriber *redis.Client
	channel    string
	sink       alerts.AlertSink
	logger     *zap.Logger
	isRunning  bool
	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
}

// NewAlertListener creates a new alert listener. The subscriber client is
// owned by the caller.
func NewAlertListener(subscriber *redis.Client, channel string, sink alerts.AlertSink, logger *zap.Logger) *AlertListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertListener{
		subscriber: subscriber,
		channel:    channel,
		sink:       sink,
		logger:     logger.Named("alert_listener"),
		stopChan:   make(chan struct{}),
	}
}

// Start subscribes and begins forwarding alerts
func (l *AlertListener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.isRunning {
		l.mu.Unlock()
		return fmt.Errorf("alert listener already running")
	}
	l.mu.Unlock()

	pubsub := l.subscriber.Subscribe(ctx, l.channel)

	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	l.mu.Lock()
	l.isRunning = true
	l.mu.Unlock()

	l.logger.Info("📡 Listening for alerts", zap.String("channel", l.channel))

	l.wg.Add(1)
	go l.handleMessages(ctx, pubsub)

	return nil
}

// Stop stops the listener and waits for the handler to exit
func (l *AlertListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.isRunning {
		l.mu.Unlock()
		return nil
	}
	l.isRunning = false
	l.mu.Unlock()

	close(l.stopChan)
	l.wg.Wait()

	l.logger.Info("AlertListener stopped")
	return nil
}

func (l *AlertListener) handleMessages(ctx context.Context, pubsub *redis.PubSub) {
	defer l.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			l.processMessage(ctx, msg.Payload)
		}
	}
}

func (l *AlertListener) processMessage(ctx context.Context, payload string) {
	var alert types.Alert
	if err := json.Unmarshal([]byte(payload), &alert); err != nil {
		l.logger.Error("Failed to parse alert", zap.Error(err))
		return
	}

	l.logger.Debug("📥 Received alert", zap.String("kind", string(alert.Kind)))

	if alert.Kind != "" && !alert.Kind.IsAllowed() {
		l.logger.Warn("⚠️ Alert kind not allowed", zap.String("kind", string(alert.Kind)))
		return
	}

	if err := l.sink.Notify(ctx, AlertSource, alert); err != nil {
		l.logger.Warn("❌ Alert not delivered", zap.String("kind", string(alert.Kind)), zap.Error(err))
	}
}
