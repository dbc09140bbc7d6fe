// Package config handles configuration loading from an optional .env file and
// the process environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the bot
type Config struct {
	// Messaging
	BotToken string
	AdminID  int64 // the only identity allowed to issue commands

	// Logging
	LogLevel  string
	LogFormat string

	// Dispatcher behavior
	CacheTTL       time.Duration
	RequestTimeout time.Duration // per-probe call timeout
	ConfirmTimeout time.Duration

	// Dashboard
	DataDiskPath  string
	DataDiskLabel string
	ServerHost    string // host used for container Web UI links

	// Power meter
	ShellyURL      string
	ShellySwitchID int
	EnergyCost     float64 // per kWh
	EnergyCurrency string

	// Torrent client
	QbitURL  string
	QbitUser string
	QbitPass string

	DockerSocket string
	PublicIPURL  string
	UseSudo      bool

	Features Features

	// Alerts
	RedisURL       string
	AlertChannel   string
	AlertRate      float64 // alerts per second
	AlertBurst     int
	HTTPAddr       string
	HookToken      string
	TempThreshold  float64
	WatchSchedule  string
	ContainerWatch bool
}

// Features toggles optional integrations
type Features struct {
	Power       bool
	Docker      bool
	Qbit        bool
	Network     bool
	Logins      bool
	Maintenance bool
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		LogLevel:       "info",
		LogFormat:      "json",
		CacheTTL:       5 * time.Second,
		RequestTimeout: 3 * time.Second,
		ConfirmTimeout: 60 * time.Second,
		DataDiskLabel:  "Data",
		ServerHost:     hostname,
		EnergyCurrency: "€",
		DockerSocket:   "/var/run/docker.sock",
		PublicIPURL:    "https://api.ipify.org",
		UseSudo:        true,
		Features: Features{
			Power:       true,
			Docker:      true,
			Qbit:        true,
			Network:     true,
			Logins:      true,
			Maintenance: true,
		},
		AlertChannel:   "homepanel:alerts",
		AlertRate:      0.5,
		AlertBurst:     5,
		TempThreshold:  80,
		WatchSchedule:  "@every 5m",
		ContainerWatch: true,
	}
}

// Load reads envFile (if it exists) and then the environment. Environment
// variables win over the file. An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	v := viper.New()
	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Field: "EnvFile", Message: err.Error()}
		}
	}
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	cfg.BotToken = strings.TrimSpace(v.GetString("BOT_TOKEN"))
	if raw := strings.TrimSpace(v.GetString("ADMIN_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &ConfigError{Field: "ADMIN_ID", Message: "must be a numeric user id"}
		}
		cfg.AdminID = id
	}

	setString(v, "LOG_LEVEL", &cfg.LogLevel)
	setString(v, "LOG_FORMAT", &cfg.LogFormat)

	for key, dst := range map[string]*time.Duration{
		"CACHE_TTL":       &cfg.CacheTTL,
		"REQUEST_TIMEOUT": &cfg.RequestTimeout,
		"CONFIRM_TIMEOUT": &cfg.ConfirmTimeout,
	} {
		if raw := v.GetString(key); raw != "" {
			d, err := parseDuration(raw)
			if err != nil {
				return nil, &ConfigError{Field: key, Message: err.Error()}
			}
			*dst = d
		}
	}

	setString(v, "DATA_DISK_PATH", &cfg.DataDiskPath)
	setString(v, "DATA_DISK_LABEL", &cfg.DataDiskLabel)
	setString(v, "SERVER_HOST", &cfg.ServerHost)

	setString(v, "SHELLY_URL", &cfg.ShellyURL)
	if v.IsSet("SHELLY_SWITCH_ID") {
		cfg.ShellySwitchID = v.GetInt("SHELLY_SWITCH_ID")
	}
	if v.IsSet("ENERGY_COST") {
		cfg.EnergyCost = v.GetFloat64("ENERGY_COST")
	}
	setString(v, "ENERGY_CURRENCY", &cfg.EnergyCurrency)

	setString(v, "QBIT_URL", &cfg.QbitURL)
	setString(v, "QBIT_USER", &cfg.QbitUser)
	setString(v, "QBIT_PASS", &cfg.QbitPass)

	setString(v, "DOCKER_SOCKET", &cfg.DockerSocket)
	setString(v, "PUBLIC_IP_URL", &cfg.PublicIPURL)
	setBool(v, "USE_SUDO", &cfg.UseSudo)

	setBool(v, "FEATURE_POWER", &cfg.Features.Power)
	setBool(v, "FEATURE_DOCKER", &cfg.Features.Docker)
	setBool(v, "FEATURE_QBIT", &cfg.Features.Qbit)
	setBool(v, "FEATURE_NETWORK", &cfg.Features.Network)
	setBool(v, "FEATURE_LOGINS", &cfg.Features.Logins)
	setBool(v, "FEATURE_MAINTENANCE", &cfg.Features.Maintenance)

	setString(v, "REDIS_URL", &cfg.RedisURL)
	setString(v, "ALERT_CHANNEL", &cfg.AlertChannel)
	if v.IsSet("ALERT_RATE") {
		cfg.AlertRate = v.GetFloat64("ALERT_RATE")
	}
	if v.IsSet("ALERT_BURST") {
		cfg.AlertBurst = v.GetInt("ALERT_BURST")
	}
	setString(v, "HTTP_ADDR", &cfg.HTTPAddr)
	setString(v, "HOOK_TOKEN", &cfg.HookToken)
	if v.IsSet("TEMP_ALERT_THRESHOLD") {
		cfg.TempThreshold = v.GetFloat64("TEMP_ALERT_THRESHOLD")
	}
	setString(v, "WATCHDOG_SCHEDULE", &cfg.WatchSchedule)
	setBool(v, "CONTAINER_WATCH", &cfg.ContainerWatch)

	// Integrations without an endpoint are off regardless of their toggle.
	if cfg.ShellyURL == "" {
		cfg.Features.Power = false
	}
	if cfg.QbitURL == "" {
		cfg.Features.Qbit = false
	}

	return cfg, nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		*dst = s
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) && v.GetString(key) != "" {
		*dst = v.GetBool(key)
	}
}

// parseDuration accepts Go durations ("5s", "1m30s") or bare seconds ("5").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if seconds, err := strconv.ParseFloat(s, 64); err == nil {
		if seconds < 0 {
			return 0, errors.New("must not be negative")
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return &ConfigError{Field: "BOT_TOKEN", Message: "bot token is required"}
	}
	if c.AdminID <= 0 {
		return &ConfigError{Field: "ADMIN_ID", Message: "admin user id is required (set ADMIN_ID)"}
	}
	if c.CacheTTL <= 0 {
		return &ConfigError{Field: "CACHE_TTL", Message: "must be positive"}
	}
	if c.RequestTimeout <= 0 {
		return &ConfigError{Field: "REQUEST_TIMEOUT", Message: "must be positive"}
	}
	if c.ConfirmTimeout <= 0 {
		return &ConfigError{Field: "CONFIRM_TIMEOUT", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
