// Package agent wires the chat bot together: it feeds inbound events to the
// dispatcher, sends its replies and runs the alert paths beside it.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/homepanel/homepanel/internal/redis"
	"github.com/homepanel/homepanel/pkg/alerts"
	"github.com/homepanel/homepanel/pkg/cache"
	"github.com/homepanel/homepanel/pkg/commands"
	"github.com/homepanel/homepanel/pkg/config"
	"github.com/homepanel/homepanel/pkg/dispatch"
	"github.com/homepanel/homepanel/pkg/probes"
	"github.com/homepanel/homepanel/pkg/server"
	"github.com/homepanel/homepanel/pkg/types"
	"go.uber.org/zap"
)

// OnlineMessage is sent to the admin when the bot starts
const OnlineMessage = "🖥 <b>System Online</b>"

// Messenger is the chat transport
type Messenger interface {
	// Updates streams inbound events until ctx is cancelled
	Updates(ctx context.Context) (<-chan types.InboundEvent, error)
	Send(ctx context.Context, reply types.Reply) error
	SetCommands(ctx context.Context, cmds []types.BotCommand) error
}

// Agent is the homepanel daemon
type Agent struct {
	config *config.Config
	logger *zap.Logger

	messenger  Messenger
	dispatcher *dispatch.Dispatcher
	notifier   *alerts.Notifier
	watchdog   *alerts.Watchdog
	server     *server.Server

	// Alert bus (optional)
	redisClient   *redis.Client
	alertListener *AlertListener

	// Probes
	systemProbe probes.SystemProbe
	probeSet    *probes.Set
	runner      commands.Runner

	// State
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

// Option is a functional option for configuring the Agent
type Option func(*Agent)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithMessenger sets the chat transport
func WithMessenger(m Messenger) Option {
	return func(a *Agent) {
		a.messenger = m
	}
}

// WithSystemProbe sets a custom system probe
func WithSystemProbe(probe probes.SystemProbe) Option {
	return func(a *Agent) {
		a.systemProbe = probe
	}
}

// WithProbes replaces every probe built from configuration
func WithProbes(set probes.Set) Option {
	return func(a *Agent) {
		a.probeSet = &set
	}
}

// WithRunner sets the runner used for privileged commands
func WithRunner(r commands.Runner) Option {
	return func(a *Agent) {
		a.runner = r
	}
}

// New creates a new agent
func New(cfg *config.Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		config:   cfg,
		logger:   zap.NewNop(),
		stopChan: make(chan struct{}),
	}

	// Apply options
	for _, opt := range opts {
		opt(a)
	}

	if a.messenger == nil {
		return nil, fmt.Errorf("agent requires a messenger")
	}

	if a.probeSet == nil {
		set := BuildProbes(cfg, a.systemProbe)
		a.probeSet = &set
	}
	if a.systemProbe == nil {
		a.systemProbe = a.probeSet.System
	}
	if a.runner == nil {
		a.runner = &commands.ExecRunner{
			Sudo: cfg.UseSudo,
			Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
		}
	}

	a.dispatcher = dispatch.New(
		dispatch.NewGuard(cfg.AdminID, a.logger),
		*a.probeSet,
		BuildRegistry(cfg, *a.probeSet, a.runner),
		dispatch.WithLogger(a.logger),
		dispatch.WithCache(cache.New(cache.WithTimeout(cfg.RequestTimeout))),
		dispatch.WithTTL(cfg.CacheTTL),
		dispatch.WithConfirmTimeout(cfg.ConfirmTimeout),
		dispatch.WithServerHost(cfg.ServerHost),
		dispatch.WithEnergyPrice(cfg.EnergyCost, cfg.EnergyCurrency),
		dispatch.WithEarlyReply(a.messenger.Send),
	)

	a.notifier = alerts.NewNotifier(a.messenger, cfg.AdminID,
		alerts.WithLogger(a.logger),
		alerts.WithRate(cfg.AlertRate, cfg.AlertBurst),
	)

	watchCfg := alerts.WatchdogConfig{
		Schedule:      cfg.WatchSchedule,
		TempThreshold: cfg.TempThreshold,
		Temperatures:  a.probeSet.Temperatures,
		Logger:        a.logger,
	}
	if cfg.ContainerWatch {
		watchCfg.Containers = a.probeSet.Containers
	}
	watchdog, err := alerts.NewWatchdog(a.notifier, watchCfg)
	if err != nil {
		return nil, &config.ConfigError{Field: "WATCHDOG_SCHEDULE", Message: err.Error()}
	}
	if watchdog.Enabled() {
		a.watchdog = watchdog
	}

	if cfg.RedisURL != "" {
		client, err := redis.NewClientLazy(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		a.redisClient = client
		a.alertListener = NewAlertListener(client.Client, cfg.AlertChannel, a.notifier, a.logger)
	}

	if cfg.HTTPAddr != "" {
		a.server = server.New(cfg.HTTPAddr, a.notifier,
			server.WithLogger(a.logger),
			server.WithHookToken(cfg.HookToken),
		)
	}

	return a, nil
}

// Dispatcher returns the command dispatcher
func (a *Agent) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Notifier returns the alert notifier
func (a *Agent) Notifier() *alerts.Notifier {
	return a.notifier
}

// Start registers the command menu, greets the admin and begins handling
// events. Only a failure to receive updates is fatal.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("agent already running")
	}
	a.running = true
	a.mu.Unlock()

	updates, err := a.messenger.Updates(ctx)
	if err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return fmt.Errorf("failed to receive updates: %w", err)
	}

	if err := a.messenger.SetCommands(ctx, a.dispatcher.Commands()); err != nil {
		a.logger.Warn("Failed to register bot commands", zap.Error(err))
	}
	online := types.Reply{
		ChatID:  a.config.AdminID,
		Text:    OnlineMessage,
		Buttons: [][]types.Button{{{Text: "🏠 Menu", Data: "menu_main"}}},
	}
	if err := a.messenger.Send(ctx, online); err != nil {
		a.logger.Warn("Failed to send online message", zap.Error(err))
	}

	a.wg.Add(1)
	go a.eventLoop(ctx, updates)

	if a.watchdog != nil {
		if err := a.watchdog.Start(ctx); err != nil {
			a.logger.Error("Failed to start watchdog", zap.Error(err))
			a.watchdog = nil
		}
	}

	// Alert bus is optional (non-fatal)
	if a.alertListener != nil {
		if err := a.alertListener.Start(ctx); err != nil {
			a.logger.Warn("⚠️ Failed to subscribe to alert bus, Redis alerts disabled", zap.Error(err))
			a.alertListener = nil
		}
	}

	if a.server != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.server.Start(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("HTTP server failed", zap.Error(err))
			}
		}()
	}

	a.logger.Info("homepanel started",
		zap.Int64("admin", a.config.AdminID),
		zap.Bool("watchdog", a.watchdog != nil),
		zap.Bool("alert_bus", a.alertListener != nil),
		zap.String("http_addr", a.config.HTTPAddr),
	)
	return nil
}

// Stop gracefully stops the agent
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	close(a.stopChan)

	if a.alertListener != nil {
		if err := a.alertListener.Stop(ctx); err != nil {
			a.logger.Error("Failed to stop alert listener", zap.Error(err))
		}
	}
	if a.watchdog != nil {
		a.watchdog.Stop()
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to stop HTTP server", zap.Error(err))
		}
	}

	// Wait for goroutines
	a.wg.Wait()

	// Stop system probe if it has a Stop method
	if probe, ok := a.systemProbe.(*probes.GoSystemProbe); ok {
		probe.Stop()
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("Failed to close Redis", zap.Error(err))
		}
	}

	a.logger.Info("homepanel stopped")
	return nil
}

// eventLoop is the single worker: events are handled one at a time so
// replies go out in the order events arrived.
func (a *Agent) eventLoop(ctx context.Context, updates <-chan types.InboundEvent) {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			for _, reply := range a.dispatcher.Handle(ctx, ev) {
				if err := a.messenger.Send(ctx, reply); err != nil {
					a.logger.Error("Failed to send reply", zap.Int64("chat", reply.ChatID), zap.Error(err))
				}
			}
		}
	}
}
