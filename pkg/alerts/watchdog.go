package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/homepanel/homepanel/pkg/probes"
	"github.com/homepanel/homepanel/pkg/types"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultSchedule runs the watchdog checks every five minutes
	DefaultSchedule = "@every 5m"
	// tempHysteresis is how far below the threshold a sensor must cool
	// before another alert can fire
	tempHysteresis = 5.0
	checkTimeout   = 10 * time.Second
)

// AlertSink accepts alerts
type AlertSink interface {
	Notify(ctx context.Context, source string, alert types.Alert) error
}

// WatchdogConfig configures the periodic checks. A nil probe or a zero
// threshold disables the matching check.
type WatchdogConfig struct {
	Schedule      string
	TempThreshold float64
	Temperatures  probes.TemperatureProbe
	Containers    probes.ContainerProbe
	Logger        *zap.Logger
}

// Watchdog raises alerts for overheating and for containers that stop
type Watchdog struct {
	sink     AlertSink
	cfg      WatchdogConfig
	cron     *cron.Cron
	logger   *zap.Logger
	mu       sync.Mutex
	hot      bool
	known    map[string]bool // nil until the first successful listing
	schedule string
}

// NewWatchdog creates a watchdog. The schedule is validated here.
func NewWatchdog(sink AlertSink, cfg WatchdogConfig) (*Watchdog, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid watchdog schedule %q: %w", cfg.Schedule, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		sink:     sink,
		cfg:      cfg,
		cron:     cron.New(),
		logger:   logger.Named("watchdog"),
		schedule: cfg.Schedule,
	}, nil
}

// Enabled reports whether any check is configured
func (w *Watchdog) Enabled() bool {
	return (w.cfg.Temperatures != nil && w.cfg.TempThreshold > 0) || w.cfg.Containers != nil
}

// Start schedules the checks. They run until Stop.
func (w *Watchdog) Start(ctx context.Context) error {
	w.logger.Info("Starting watchdog", zap.String("schedule", w.schedule))

	if _, err := w.cron.AddFunc(w.schedule, func() { w.Check(ctx) }); err != nil {
		return fmt.Errorf("schedule watchdog: %w", err)
	}
	w.cron.Start()

	// Take the container baseline right away so a crash before the first
	// tick is still noticed.
	go w.Check(ctx)
	return nil
}

// Stop waits for a running check to finish
func (w *Watchdog) Stop() {
	w.logger.Info("Stopping watchdog")
	ctx := w.cron.Stop()
	<-ctx.Done()
}

// Check runs every enabled check once
func (w *Watchdog) Check(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if w.cfg.Temperatures != nil && w.cfg.TempThreshold > 0 {
		w.checkTemperature(ctx)
	}
	if w.cfg.Containers != nil {
		w.checkContainers(ctx)
	}
}

func (w *Watchdog) checkTemperature(ctx context.Context) {
	readings, err := w.cfg.Temperatures.GetTemperatures(ctx)
	if err != nil {
		w.logger.Debug("temperature check skipped", zap.Error(err))
		return
	}
	cpu, ok := probes.CPUTemperature(readings)
	if !ok {
		return
	}

	switch {
	case !w.hot && cpu.Celsius >= w.cfg.TempThreshold:
		w.hot = true
		w.notify(ctx, types.Alert{
			Kind:    types.AlertTemperature,
			Message: fmt.Sprintf("%s is at %.1f°C (threshold %.0f°C)", cpu.Sensor, cpu.Celsius, w.cfg.TempThreshold),
		})
	case w.hot && cpu.Celsius < w.cfg.TempThreshold-tempHysteresis:
		w.hot = false
		w.logger.Info("temperature back to normal", zap.Float64("celsius", cpu.Celsius))
	}
}

func (w *Watchdog) checkContainers(ctx context.Context) {
	list, err := w.cfg.Containers.ListContainers(ctx)
	if err != nil {
		w.logger.Debug("container check skipped", zap.Error(err))
		return
	}

	running := make(map[string]bool, len(list))
	for _, c := range list {
		if c.Running() {
			running[c.Name] = true
		}
	}

	if w.known != nil {
		var gone []string
		for name := range w.known {
			if !running[name] {
				gone = append(gone, name)
			}
		}
		sort.Strings(gone)
		for _, name := range gone {
			w.notify(ctx, types.Alert{
				Kind:    types.AlertContainerDown,
				Message: fmt.Sprintf("%s is no longer running", name),
			})
		}
	}
	w.known = running
}

func (w *Watchdog) notify(ctx context.Context, alert types.Alert) {
	alert.Source = "watchdog"
	if err := w.sink.Notify(ctx, "watchdog", alert); err != nil {
		w.logger.Warn("watchdog alert not delivered", zap.Error(err))
	}
}
