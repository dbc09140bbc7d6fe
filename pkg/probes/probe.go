// Package probes provides read-only metric sources. Every probe is
// idempotent and side-effect free; each call queries its source once.
package probes

import (
	"context"
	"errors"

	"github.com/homepanel/homepanel/pkg/types"
)

var (
	// ErrUnavailable marks a source that could not be reached or read.
	ErrUnavailable = errors.New("data unavailable")
	// ErrDisabled marks an integration turned off in configuration.
	ErrDisabled = errors.New("integration disabled")
)

// SystemProbe collects CPU, memory, disk and uptime
type SystemProbe interface {
	GetMetrics(ctx context.Context) (*types.SystemMetrics, error)
}

// TemperatureProbe reads hardware sensors
type TemperatureProbe interface {
	GetTemperatures(ctx context.Context) ([]types.TemperatureReading, error)
}

// PowerProbe reads the power meter
type PowerProbe interface {
	GetReading(ctx context.Context) (*types.PowerReading, error)
}

// ContainerProbe lists containers, stopped ones included
type ContainerProbe interface {
	ListContainers(ctx context.Context) ([]types.Container, error)
}

// TorrentProbe reads torrent client state
type TorrentProbe interface {
	GetStats(ctx context.Context) (*types.TorrentStats, error)
}

// NetworkProbe reads addresses and counters
type NetworkProbe interface {
	GetNetwork(ctx context.Context) (*types.NetworkInfo, error)
}

// LoginProbe reads SSH login history and active sessions
type LoginProbe interface {
	GetLogins(ctx context.Context) (*types.LoginInfo, error)
}

// Set groups the probes a dispatcher can use. A nil member means the
// integration is disabled.
type Set struct {
	System       SystemProbe
	Temperatures TemperatureProbe
	Power        PowerProbe
	Containers   ContainerProbe
	Torrents     TorrentProbe
	Network      NetworkProbe
	Logins       LoginProbe
	Processes    ProcessProbe
	Updates      UpdatesProbe
}
