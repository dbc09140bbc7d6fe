package dispatch

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/homepanel/homepanel/pkg/commands"
	"github.com/homepanel/homepanel/pkg/probes"
	"github.com/homepanel/homepanel/pkg/types"
)

var (
	backButton   = types.Button{Text: "⬅️ Back", Data: "menu_main"}
	controlsBack = types.Button{Text: "⬅️ Back", Data: "menu_sys_controls"}
	cancelButton = types.Button{Text: "❌ Cancel", Data: "action_cancel"}
	menuButton   = types.Button{Text: "🏠 Menu", Data: "menu_main"}
)

var actionLabels = map[types.ActionKind]string{
	types.ActionReboot:        "Reboot",
	types.ActionShutdown:      "Shutdown",
	types.ActionMaintenance:   "Maintenance",
	types.ActionUpgrade:       "Upgrade",
	types.ActionCleanup:       "Cleanup",
	types.ActionTorrentPause:  "Pause torrents",
	types.ActionTorrentResume: "Resume torrents",
}

var actionPrompts = map[types.ActionKind]string{
	types.ActionReboot:      "Reboot the server?",
	types.ActionShutdown:    "Shut down the server?",
	types.ActionMaintenance: "Run apt update, upgrade and cleanup?",
	types.ActionUpgrade:     "Run apt update and upgrade? The bot may be slow to respond meanwhile.",
	types.ActionCleanup:     "Run apt autoremove and clean?",
}

func esc(s string) string {
	return html.EscapeString(s)
}

func helpView() View {
	text := strings.Join([]string{
		"🤖 <b>Home server panel</b>",
		"",
		"/start - dashboard and menu",
		"/status - system status",
		"/temp - temperatures",
		"/power - power usage",
		"/containers - containers and their state",
		"/torrents - qBittorrent status",
		"/pause, /resume - pause or resume all torrents",
		"/network - addresses and traffic",
		"/logins - recent SSH logins",
		"/processes - top processes by CPU and memory",
		"/updates - pending package updates",
		"/reboot, /shutdown - power the server (asks first)",
		"/upgrade - apt update and upgrade (asks first)",
		"/cleanup - apt autoremove and clean (asks first)",
		"/maintenance - upgrade and cleanup in one go (asks first)",
		"/cancel - drop a pending confirmation",
	}, "\n")
	return View{Text: text, Buttons: [][]types.Button{{menuButton}}}
}

func errorView(err error) View {
	return View{
		Text:    "⚠️ " + esc(commands.Truncate(err.Error(), commands.MaxOutputBytes)),
		Buttons: [][]types.Button{{backButton}},
	}
}

// unavailableLine renders a probe failure inline
func unavailableLine(what string, err error) string {
	if errors.Is(err, probes.ErrDisabled) {
		return fmt.Sprintf("<i>%s: disabled</i>", what)
	}
	return fmt.Sprintf("<i>%s: unavailable</i>", what)
}

// staleNote marks data served after a failed refresh
func staleNote(age time.Duration) string {
	return fmt.Sprintf("<i>(last known, %s old)</i>", formatDuration(age))
}

// formatDuration renders coarse durations like 3d 4h 12m
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}

func formatRate(bytesPerSec int64) string {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

func resultLine(kind types.ActionKind, result types.ActionResult) string {
	label := actionLabels[kind]
	switch result.Status {
	case types.StatusSuccess:
		return fmt.Sprintf("✅ %s: %s", label, esc(result.Message))
	case types.StatusNotAllowed:
		return fmt.Sprintf("🚫 %s: %s", label, esc(result.Message))
	default:
		return fmt.Sprintf("❌ %s failed:\n<pre>%s</pre>", label, esc(result.Message))
	}
}

// pairs lays buttons out two per row
func pairs(buttons []types.Button) [][]types.Button {
	var rows [][]types.Button
	for i := 0; i < len(buttons); i += 2 {
		end := min(i+2, len(buttons))
		rows = append(rows, buttons[i:end])
	}
	return rows
}
