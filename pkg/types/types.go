// Package types defines shared types for the homepanel bot.
package types

import "time"

// CPUMetrics contains CPU usage data
type CPUMetrics struct {
	System float64 `json:"system"` // System-wide CPU % (0-100)
	Cores  int     `json:"cores"`
}

// SystemMemory contains system-wide memory metrics
type SystemMemory struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

// DiskUsage describes one mounted filesystem
type DiskUsage struct {
	Label       string  `json:"label"`
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

// SystemMetrics is the dashboard snapshot
type SystemMetrics struct {
	Hostname string        `json:"hostname"`
	Platform string        `json:"platform"`
	Uptime   time.Duration `json:"uptime"`
	CPU      CPUMetrics    `json:"cpu"`
	Memory   SystemMemory  `json:"memory"`
	Disks    []DiskUsage   `json:"disks"`
	// Errors lists disks or sources that could not be read
	Errors []string `json:"errors,omitempty"`
}

// TemperatureReading is one hardware sensor value
type TemperatureReading struct {
	Sensor  string  `json:"sensor"`
	Celsius float64 `json:"celsius"`
}

// PowerReading is an instantaneous reading from the power meter
type PowerReading struct {
	Watts    float64 `json:"watts"`
	Voltage  float64 `json:"voltage"`
	EnergyWh float64 `json:"energyWh"` // cumulative
	Output   bool    `json:"output"`
}

// ContainerPort is a published container port
type ContainerPort struct {
	PrivatePort uint16 `json:"privatePort"`
	PublicPort  uint16 `json:"publicPort"`
	Type        string `json:"type"`
}

// Container is a running container as reported by the runtime
type Container struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Image  string          `json:"image"`
	State  string          `json:"state"`
	Status string          `json:"status"`
	Ports  []ContainerPort `json:"ports,omitempty"`
}

// Running reports whether the container is up. An empty state comes from
// sources that only list running containers.
func (c Container) Running() bool {
	return c.State == "" || c.State == "running"
}

// WebPort returns the first published TCP port, or 0
func (c Container) WebPort() uint16 {
	for _, p := range c.Ports {
		if p.PublicPort != 0 && (p.Type == "" || p.Type == "tcp") {
			return p.PublicPort
		}
	}
	return 0
}

// TorrentStats summarises the torrent client
type TorrentStats struct {
	Downloading   int   `json:"downloading"`
	Seeding       int   `json:"seeding"`
	Completed     int   `json:"completed"`
	Paused        int   `json:"paused"`
	Total         int   `json:"total"`
	DownloadSpeed int64 `json:"downloadSpeed"` // bytes/s
	UploadSpeed   int64 `json:"uploadSpeed"`   // bytes/s
}

// InterfaceAddr is a non-loopback address on a local interface
type InterfaceAddr struct {
	Interface string `json:"interface"`
	Addr      string `json:"addr"`
}

// NetworkInfo holds addresses and counters
type NetworkInfo struct {
	LocalAddrs []InterfaceAddr `json:"localAddrs"`
	PublicIP   string          `json:"publicIp,omitempty"`
	BytesSent  uint64          `json:"bytesSent"`
	BytesRecv  uint64          `json:"bytesRecv"`
}

// LoginRecord is one line of login history
type LoginRecord struct {
	User     string `json:"user"`
	Terminal string `json:"terminal"`
	Host     string `json:"host"`
	When     string `json:"when"`
}

// Session is a currently logged in user
type Session struct {
	User     string    `json:"user"`
	Terminal string    `json:"terminal"`
	Host     string    `json:"host"`
	Started  time.Time `json:"started"`
}

// LoginInfo combines history and active sessions
type LoginInfo struct {
	Recent []LoginRecord `json:"recent"`
	Active []Session     `json:"active"`
}

// ProcessInfo is one process with its resource shares
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpuPercent"`
	MemPercent float32 `json:"memPercent"`
}

// ProcessList holds the heaviest processes by CPU and by memory
type ProcessList struct {
	Total     int           `json:"total"`
	TopCPU    []ProcessInfo `json:"topCpu"`
	TopMemory []ProcessInfo `json:"topMemory"`
}

// PackageUpdate is one upgradable package
type PackageUpdate struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	From    string `json:"from,omitempty"`
}

// UpdatesInfo lists pending package upgrades
type UpdatesInfo struct {
	Count    int             `json:"count"`
	Packages []PackageUpdate `json:"packages"`
}

// ============================================
// Messaging
// ============================================

// InboundEvent is a message or button press from the chat
type InboundEvent struct {
	ID         int64  // monotonically increasing update id
	SenderID   int64  // user that produced the event
	ChatID     int64  // chat to reply into
	MessageID  int    // message the button belongs to (callbacks only)
	Command    string // text command without the leading slash
	Args       string
	Callback   string // callback data
	CallbackID string
}

// IsCallback reports whether the event is a button press
func (e InboundEvent) IsCallback() bool {
	return e.CallbackID != ""
}

// Button is an inline keyboard button
type Button struct {
	Text string
	Data string // callback data
	URL  string // opens a link instead of sending a callback
}

// Reply is an outbound message
type Reply struct {
	ChatID int64
	// EditMessageID edits an existing message when non-zero
	EditMessageID int
	Text          string
	Buttons       [][]Button
	// AnswerCallbackID acknowledges a button press
	AnswerCallbackID string
}

// BotCommand is an entry in the chat client's command menu
type BotCommand struct {
	Command     string
	Description string
}

// ============================================
// Privileged actions
// ============================================

// ActionKind represents allowed privileged action types
type ActionKind string

const (
	ActionReboot        ActionKind = "REBOOT"
	ActionShutdown      ActionKind = "SHUTDOWN"
	ActionMaintenance   ActionKind = "MAINTENANCE"
	ActionUpgrade       ActionKind = "UPGRADE"
	ActionCleanup       ActionKind = "CLEANUP"
	ActionTorrentPause  ActionKind = "TORRENT_PAUSE"
	ActionTorrentResume ActionKind = "TORRENT_RESUME"
)

// AllowedActions is the security allowlist
var AllowedActions = []ActionKind{
	ActionReboot,
	ActionShutdown,
	ActionMaintenance,
	ActionUpgrade,
	ActionCleanup,
	ActionTorrentPause,
	ActionTorrentResume,
}

// IsAllowed checks if an action kind is in the allowlist
func (k ActionKind) IsAllowed() bool {
	for _, allowed := range AllowedActions {
		if k == allowed {
			return true
		}
	}
	return false
}

// RequiresConfirmation reports whether the action needs a second confirming event
func (k ActionKind) RequiresConfirmation() bool {
	switch k {
	case ActionReboot, ActionShutdown, ActionMaintenance, ActionUpgrade, ActionCleanup:
		return true
	}
	return false
}

// ActionState tracks a privileged action request
type ActionState string

const (
	StateRequested ActionState = "requested"
	StateConfirmed ActionState = "confirmed"
	StateExecuting ActionState = "executing"
	StateSucceeded ActionState = "succeeded"
	StateFailed    ActionState = "failed"
)

// ActionRequest is an in-flight privileged action
type ActionRequest struct {
	ID          string      `json:"id"`
	Kind        ActionKind  `json:"kind"`
	Issuer      int64       `json:"issuer"`
	State       ActionState `json:"state"`
	RequestedAt time.Time   `json:"requestedAt"`
}

// ActionStatus represents execution result status
type ActionStatus string

const (
	StatusSuccess    ActionStatus = "success"
	StatusFailed     ActionStatus = "failed"
	StatusNotAllowed ActionStatus = "not_allowed"
)

// ActionResult represents the result of action execution
type ActionResult struct {
	RequestID string       `json:"requestId"`
	Status    ActionStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// NewSuccessResult creates a success result
func NewSuccessResult(requestID, message string) ActionResult {
	return ActionResult{
		RequestID: requestID,
		Status:    StatusSuccess,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewFailedResult creates a failed result
func NewFailedResult(requestID, message string) ActionResult {
	return ActionResult{
		RequestID: requestID,
		Status:    StatusFailed,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ============================================
// Alerts
// ============================================

// AlertKind classifies push notifications from hooks and the watchdog
type AlertKind string

const (
	AlertTemperature     AlertKind = "temperature"
	AlertContainerDown   AlertKind = "container_down"
	AlertTorrentComplete AlertKind = "torrent_complete"
	AlertGeneric         AlertKind = "generic"
)

// AllowedAlerts lists the alert kinds accepted from external triggers
var AllowedAlerts = []AlertKind{AlertTemperature, AlertContainerDown, AlertTorrentComplete, AlertGeneric}

// IsAllowed checks if an alert kind is known
func (k AlertKind) IsAllowed() bool {
	for _, allowed := range AllowedAlerts {
		if k == allowed {
			return true
		}
	}
	return false
}

// Alert is a one-shot notification that bypasses the dispatcher
type Alert struct {
	Kind      AlertKind `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
}
