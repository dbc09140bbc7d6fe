package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/homepanel/homepanel/pkg/cache"
	"github.com/homepanel/homepanel/pkg/probes"
	"github.com/homepanel/homepanel/pkg/types"
	"go.uber.org/zap"
)

// Cache keys, one per probe
const (
	keySystem       = "system"
	keyTemperatures = "temperatures"
	keyPower        = "power"
	keyContainers   = "containers"
	keyTorrents     = "torrents"
	keyNetwork      = "network"
	keyLogins       = "logins"
	keyProcesses    = "processes"
	keyUpdates      = "updates"
)

// maxListedUpdates caps the package names shown in the updates view
const maxListedUpdates = 10

func (d *Dispatcher) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		"start":     d.handleDashboard,
		"menu":      d.handleDashboard,
		"status":    d.handleDashboard,
		"menu_main": d.handleDashboard,
		"help":      d.handleHelp,

		"temp":       d.handleTemperatures,
		"menu_temp":  d.handleTemperatures,
		"power":      d.handlePower,
		"menu_power": d.handlePower,

		"containers":      d.handleContainers,
		"menu_containers": d.handleContainers,

		"torrents":         d.handleTorrents,
		"menu_qbittorrent": d.handleTorrents,
		"qbit_refresh":     d.handleTorrents,
		"pause":            d.torrentAction(types.ActionTorrentPause),
		"qbit_pause":       d.torrentAction(types.ActionTorrentPause),
		"resume":           d.torrentAction(types.ActionTorrentResume),
		"qbit_resume":      d.torrentAction(types.ActionTorrentResume),

		"network":       d.handleNetwork,
		"menu_network":  d.handleNetwork,
		"logins":        d.handleLogins,
		"menu_terminal": d.handleLogins,

		"processes":      d.handleProcesses,
		"menu_processes": d.handleProcesses,
		"updates":        d.handleUpdates,
		"menu_updates":   d.handleUpdates,

		"controls":          d.handleControls,
		"menu_sys_controls": d.handleControls,

		"reboot":              d.requestAction(types.ActionReboot),
		"confirm_reboot":      d.requestAction(types.ActionReboot),
		"shutdown":            d.requestAction(types.ActionShutdown),
		"confirm_shutdown":    d.requestAction(types.ActionShutdown),
		"maintenance":         d.requestAction(types.ActionMaintenance),
		"confirm_maintenance": d.requestAction(types.ActionMaintenance),
		"upgrade":             d.requestAction(types.ActionUpgrade),
		"confirm_upgrade":     d.requestAction(types.ActionUpgrade),
		"cleanup":             d.requestAction(types.ActionCleanup),
		"confirm_cleanup":     d.requestAction(types.ActionCleanup),

		"action_reboot":      d.confirmAction(types.ActionReboot),
		"action_shutdown":    d.confirmAction(types.ActionShutdown),
		"action_maintenance": d.confirmAction(types.ActionMaintenance),
		"action_upgrade":     d.confirmAction(types.ActionUpgrade),
		"action_cleanup":     d.confirmAction(types.ActionCleanup),

		"cancel":        d.handleCancel,
		"action_cancel": d.handleCancel,
	}
}

// ============================================
// Cached probe reads
// ============================================

// reading is a probe result that may be stale or missing
type reading[T any] struct {
	value T
	ok    bool
	stale bool
	age   time.Duration
	err   error
}

func load[T any](ctx context.Context, d *Dispatcher, key string, enabled bool, produce func(context.Context) (T, error)) reading[T] {
	if !enabled {
		return reading[T]{err: probes.ErrDisabled}
	}
	v, err := cache.Fetch(ctx, d.cache, key, d.ttl, produce)
	if err == nil {
		return reading[T]{value: v, ok: true}
	}

	d.logger.Warn("probe refresh failed", zap.String("probe", key), zap.Error(err))
	if old, age, found := d.cache.Stale(key); found {
		if typed, ok := old.(T); ok {
			return reading[T]{value: typed, ok: true, stale: true, age: age, err: err}
		}
	}
	return reading[T]{err: err}
}

func (d *Dispatcher) system(ctx context.Context) reading[*types.SystemMetrics] {
	return load(ctx, d, keySystem, d.probes.System != nil, func(ctx context.Context) (*types.SystemMetrics, error) {
		return d.probes.System.GetMetrics(ctx)
	})
}

func (d *Dispatcher) temperatures(ctx context.Context) reading[[]types.TemperatureReading] {
	return load(ctx, d, keyTemperatures, d.probes.Temperatures != nil, func(ctx context.Context) ([]types.TemperatureReading, error) {
		return d.probes.Temperatures.GetTemperatures(ctx)
	})
}

func (d *Dispatcher) power(ctx context.Context) reading[*types.PowerReading] {
	return load(ctx, d, keyPower, d.probes.Power != nil, func(ctx context.Context) (*types.PowerReading, error) {
		return d.probes.Power.GetReading(ctx)
	})
}

func (d *Dispatcher) containers(ctx context.Context) reading[[]types.Container] {
	return load(ctx, d, keyContainers, d.probes.Containers != nil, func(ctx context.Context) ([]types.Container, error) {
		return d.probes.Containers.ListContainers(ctx)
	})
}

func (d *Dispatcher) torrents(ctx context.Context) reading[*types.TorrentStats] {
	return load(ctx, d, keyTorrents, d.probes.Torrents != nil, func(ctx context.Context) (*types.TorrentStats, error) {
		return d.probes.Torrents.GetStats(ctx)
	})
}

func (d *Dispatcher) network(ctx context.Context) reading[*types.NetworkInfo] {
	return load(ctx, d, keyNetwork, d.probes.Network != nil, func(ctx context.Context) (*types.NetworkInfo, error) {
		return d.probes.Network.GetNetwork(ctx)
	})
}

func (d *Dispatcher) logins(ctx context.Context) reading[*types.LoginInfo] {
	return load(ctx, d, keyLogins, d.probes.Logins != nil, func(ctx context.Context) (*types.LoginInfo, error) {
		return d.probes.Logins.GetLogins(ctx)
	})
}

func (d *Dispatcher) processes(ctx context.Context) reading[*types.ProcessList] {
	return load(ctx, d, keyProcesses, d.probes.Processes != nil, func(ctx context.Context) (*types.ProcessList, error) {
		return d.probes.Processes.GetProcesses(ctx)
	})
}

func (d *Dispatcher) updates(ctx context.Context) reading[*types.UpdatesInfo] {
	return load(ctx, d, keyUpdates, d.probes.Updates != nil, func(ctx context.Context) (*types.UpdatesInfo, error) {
		return d.probes.Updates.GetUpdates(ctx)
	})
}

// ============================================
// Views
// ============================================

func (d *Dispatcher) handleHelp(ctx context.Context, ev types.InboundEvent) (View, error) {
	return helpView(), nil
}

func (d *Dispatcher) handleDashboard(ctx context.Context, ev types.InboundEvent) (View, error) {
	var b strings.Builder

	sys := d.system(ctx)
	if !sys.ok {
		b.WriteString("🖥 <b>Server</b>\n")
		b.WriteString(unavailableLine("System metrics", sys.err))
	} else {
		m := sys.value
		fmt.Fprintf(&b, "🖥 <b>%s</b>\n", esc(m.Hostname))
		if m.Uptime > 0 {
			fmt.Fprintf(&b, "⏱ Uptime: %s\n", formatDuration(m.Uptime))
		}
		fmt.Fprintf(&b, "🧠 CPU: %.1f%% (%d cores)", m.CPU.System, m.CPU.Cores)
		if temps := d.temperatures(ctx); temps.ok {
			if cpu, found := probes.CPUTemperature(temps.value); found {
				fmt.Fprintf(&b, " · 🌡 %.1f°C", cpu.Celsius)
			}
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "💾 RAM: %s / %s (%.1f%%)\n",
			humanize.IBytes(m.Memory.Used), humanize.IBytes(m.Memory.Total), m.Memory.UsedPercent)
		for _, disk := range m.Disks {
			fmt.Fprintf(&b, "💿 %s: %s / %s (%.1f%%), free %s\n",
				esc(disk.Label), humanize.IBytes(disk.Used), humanize.IBytes(disk.Total), disk.UsedPercent, humanize.IBytes(disk.Free))
		}
		for _, e := range m.Errors {
			fmt.Fprintf(&b, "<i>%s</i>\n", esc(e))
		}
		if sys.stale {
			b.WriteString(staleNote(sys.age))
		}
	}

	return View{Text: strings.TrimRight(b.String(), "\n"), Buttons: d.mainMenu()}, nil
}

func (d *Dispatcher) mainMenu() [][]types.Button {
	var buttons []types.Button
	if d.probes.Logins != nil {
		buttons = append(buttons, types.Button{Text: "🖥 Terminal", Data: "menu_terminal"})
	}
	buttons = append(buttons, types.Button{Text: "⚙️ Controls", Data: "menu_sys_controls"})
	if d.probes.Torrents != nil {
		buttons = append(buttons, types.Button{Text: "🧲 qBittorrent", Data: "menu_qbittorrent"})
	}
	if d.probes.Containers != nil {
		buttons = append(buttons, types.Button{Text: "🐳 Containers", Data: "menu_containers"})
	}
	if d.probes.Power != nil {
		buttons = append(buttons, types.Button{Text: "⚡ Power", Data: "menu_power"})
	}
	if d.probes.Network != nil {
		buttons = append(buttons, types.Button{Text: "🌐 Network", Data: "menu_network"})
	}
	if d.probes.Processes != nil {
		buttons = append(buttons, types.Button{Text: "📊 Processes", Data: "menu_processes"})
	}
	if d.probes.Updates != nil {
		buttons = append(buttons, types.Button{Text: "📦 Updates", Data: "menu_updates"})
	}
	buttons = append(buttons,
		types.Button{Text: "🌡 Temperatures", Data: "menu_temp"},
		types.Button{Text: "🔄 Refresh", Data: "menu_main"},
	)
	return pairs(buttons)
}

func (d *Dispatcher) handleTemperatures(ctx context.Context, ev types.InboundEvent) (View, error) {
	var b strings.Builder
	b.WriteString("🌡 <b>Temperatures</b>\n")

	temps := d.temperatures(ctx)
	if !temps.ok {
		b.WriteString(unavailableLine("Sensors", temps.err))
	} else {
		cpu, _ := probes.CPUTemperature(temps.value)
		for _, r := range temps.value {
			marker := "•"
			if r.Sensor == cpu.Sensor {
				marker = "▶"
			}
			fmt.Fprintf(&b, "%s %s: %.1f°C\n", marker, esc(r.Sensor), r.Celsius)
		}
		if temps.stale {
			b.WriteString(staleNote(temps.age))
		}
	}

	return View{
		Text:    strings.TrimRight(b.String(), "\n"),
		Buttons: [][]types.Button{{{Text: "🔄 Refresh", Data: "menu_temp"}, backButton}},
	}, nil
}

func (d *Dispatcher) handlePower(ctx context.Context, ev types.InboundEvent) (View, error) {
	var b strings.Builder
	b.WriteString("⚡ <b>Power</b>\n")

	p := d.power(ctx)
	if !p.ok {
		b.WriteString(unavailableLine("Power meter", p.err))
	} else {
		state := "off"
		if p.value.Output {
			state = "on"
		}
		fmt.Fprintf(&b, "Outlet: %s\n", state)
		fmt.Fprintf(&b, "Draw: %.1f W\n", p.value.Watts)
		if p.value.Voltage > 0 {
			fmt.Fprintf(&b, "Voltage: %.1f V\n", p.value.Voltage)
		}
		fmt.Fprintf(&b, "Energy: %.2f kWh\n", p.value.EnergyWh/1000)
		if d.energyCost > 0 {
			fmt.Fprintf(&b, "Cost: %.2f %s\n", probes.EnergyCost(p.value.EnergyWh, d.energyCost), esc(d.currency))
		}
		if p.stale {
			b.WriteString(staleNote(p.age))
		}
	}

	return View{
		Text:    strings.TrimRight(b.String(), "\n"),
		Buttons: [][]types.Button{{{Text: "🔄 Refresh", Data: "menu_power"}, backButton}},
	}, nil
}

func (d *Dispatcher) handleContainers(ctx context.Context, ev types.InboundEvent) (View, error) {
	var b strings.Builder
	var links []types.Button

	list := d.containers(ctx)
	if !list.ok {
		b.WriteString("🐳 <b>Containers</b>\n")
		b.WriteString(unavailableLine("Docker", list.err))
	} else {
		running := 0
		for _, c := range list.value {
			if c.Running() {
				running++
			}
		}
		fmt.Fprintf(&b, "🐳 <b>Containers</b> (%d running, %d total)\n", running, len(list.value))
		for _, c := range list.value {
			if !c.Running() {
				fmt.Fprintf(&b, "🔴 <b>%s</b> %s: %s\n", esc(c.Name), esc(c.State), esc(c.Status))
				continue
			}
			fmt.Fprintf(&b, "🟢 <b>%s</b> %s\n", esc(c.Name), esc(c.Status))
			if port := c.WebPort(); port != 0 && d.serverHost != "" {
				links = append(links, types.Button{
					Text: "🌐 " + c.Name,
					URL:  fmt.Sprintf("http://%s:%d", d.serverHost, port),
				})
			}
		}
		if list.stale {
			b.WriteString(staleNote(list.age))
		}
	}

	buttons := pairs(links)
	buttons = append(buttons, []types.Button{{Text: "🔄 Refresh", Data: "menu_containers"}, backButton})
	return View{Text: strings.TrimRight(b.String(), "\n"), Buttons: buttons}, nil
}

func torrentButtons() [][]types.Button {
	return [][]types.Button{
		{{Text: "🔄 Refresh", Data: "qbit_refresh"}},
		{{Text: "⏸ Pause all", Data: "qbit_pause"}, {Text: "▶️ Resume all", Data: "qbit_resume"}},
		{backButton},
	}
}

func (d *Dispatcher) handleTorrents(ctx context.Context, ev types.InboundEvent) (View, error) {
	return View{Text: d.torrentText(ctx), Buttons: torrentButtons()}, nil
}

func (d *Dispatcher) torrentText(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("🧲 <b>qBittorrent</b>\n")

	stats := d.torrents(ctx)
	if !stats.ok {
		b.WriteString(unavailableLine("Torrent client", stats.err))
		return b.String()
	}
	s := stats.value
	fmt.Fprintf(&b, "⬇️ Downloading: %d\n", s.Downloading)
	fmt.Fprintf(&b, "⬆️ Seeding: %d\n", s.Seeding)
	fmt.Fprintf(&b, "✅ Completed: %d\n", s.Completed)
	fmt.Fprintf(&b, "⏸ Paused: %d\n", s.Paused)
	fmt.Fprintf(&b, "Total: %d\n", s.Total)
	fmt.Fprintf(&b, "Speed: ⬇️ %s ⬆️ %s", formatRate(s.DownloadSpeed), formatRate(s.UploadSpeed))
	if stats.stale {
		b.WriteString("\n" + staleNote(stats.age))
	}
	return b.String()
}

// torrentAction executes pause or resume right away and shows the
// refreshed torrent view.
func (d *Dispatcher) torrentAction(kind types.ActionKind) handlerFunc {
	return func(ctx context.Context, ev types.InboundEvent) (View, error) {
		req := &types.ActionRequest{
			ID:          uuid.NewString(),
			Kind:        kind,
			Issuer:      ev.SenderID,
			State:       types.StateExecuting,
			RequestedAt: d.now(),
		}
		result := d.execute(ctx, req)
		d.cache.Invalidate(keyTorrents)

		text := resultLine(kind, result) + "\n\n" + d.torrentText(ctx)
		return View{Text: text, Buttons: torrentButtons()}, nil
	}
}

func (d *Dispatcher) handleNetwork(ctx context.Context, ev types.InboundEvent) (View, error) {
	var b strings.Builder
	b.WriteString("🌐 <b>Network</b>\n")

	info := d.network(ctx)
	if !info.ok {
		b.WriteString(unavailableLine("Network", info.err))
	} else {
		n := info.value
		for _, a := range n.LocalAddrs {
			fmt.Fprintf(&b, "• %s: <code>%s</code>\n", esc(a.Interface), esc(a.Addr))
		}
		if n.PublicIP != "" {
			fmt.Fprintf(&b, "Public: <code>%s</code>\n", esc(n.PublicIP))
		} else {
			b.WriteString("Public: <i>unavailable</i>\n")
		}
		fmt.Fprintf(&b, "Traffic: ⬆️ %s ⬇️ %s\n", humanize.IBytes(n.BytesSent), humanize.IBytes(n.BytesRecv))
		if info.stale {
			b.WriteString(staleNote(info.age))
		}
	}

	return View{
		Text:    strings.TrimRight(b.String(), "\n"),
		Buttons: [][]types.Button{{{Text: "🔄 Refresh", Data: "menu_network"}, backButton}},
	}, nil
}

func (d *Dispatcher) handleLogins(ctx context.Context, ev types.InboundEvent) (View, error) {
	var b strings.Builder
	b.WriteString("🖥 <b>Terminal</b>\n")

	info := d.logins(ctx)
	if !info.ok {
		b.WriteString(unavailableLine("Login history", info.err))
	} else {
		b.WriteString("<b>Active sessions</b>\n")
		if len(info.value.Active) == 0 {
			b.WriteString("<i>none</i>\n")
		}
		for _, s := range info.value.Active {
			fmt.Fprintf(&b, "• %s on %s", esc(s.User), esc(s.Terminal))
			if s.Host != "" {
				fmt.Fprintf(&b, " from %s", esc(s.Host))
			}
			if !s.Started.IsZero() {
				fmt.Fprintf(&b, " (%s)", humanize.Time(s.Started))
			}
			b.WriteString("\n")
		}

		b.WriteString("\n<b>Recent logins</b>\n")
		if len(info.value.Recent) == 0 {
			b.WriteString("<i>none</i>\n")
		}
		for _, r := range info.value.Recent {
			host := r.Host
			if host == "" {
				host = "local"
			}
			fmt.Fprintf(&b, "• %s %s %s\n  %s\n", esc(r.User), esc(r.Terminal), esc(host), esc(r.When))
		}
		if info.stale {
			b.WriteString(staleNote(info.age))
		}
	}

	return View{
		Text:    strings.TrimRight(b.String(), "\n"),
		Buttons: [][]types.Button{{{Text: "🔄 Refresh", Data: "menu_terminal"}, backButton}},
	}, nil
}

func (d *Dispatcher) handleProcesses(ctx context.Context, ev types.InboundEvent) (View, error) {
	var b strings.Builder
	b.WriteString("📊 <b>Top Processes</b>\n")

	list := d.processes(ctx)
	if !list.ok {
		b.WriteString(unavailableLine("Process list", list.err))
	} else {
		fmt.Fprintf(&b, "<i>%d processes</i>\n\n<b>By CPU</b>\n", list.value.Total)
		for _, p := range list.value.TopCPU {
			fmt.Fprintf(&b, "• %s: %.1f%%\n", esc(shorten(p.Name, 15)), p.CPUPercent)
		}
		b.WriteString("\n<b>By memory</b>\n")
		for _, p := range list.value.TopMemory {
			fmt.Fprintf(&b, "• %s: %.1f%%\n", esc(shorten(p.Name, 15)), p.MemPercent)
		}
		if list.stale {
			b.WriteString(staleNote(list.age))
		}
	}

	return View{
		Text:    strings.TrimRight(b.String(), "\n"),
		Buttons: [][]types.Button{{{Text: "🔄 Refresh", Data: "menu_processes"}, backButton}},
	}, nil
}

func (d *Dispatcher) handleUpdates(ctx context.Context, ev types.InboundEvent) (View, error) {
	var b strings.Builder
	var rows [][]types.Button

	info := d.updates(ctx)
	switch {
	case !info.ok:
		b.WriteString("📦 <b>Updates</b>\n")
		b.WriteString(unavailableLine("Package list", info.err))
	case info.value.Count == 0:
		b.WriteString("✅ <b>System is up to date.</b>")
	default:
		fmt.Fprintf(&b, "📦 <b>Updates available:</b> %d\n", info.value.Count)
		for i, pkg := range info.value.Packages {
			if i == maxListedUpdates {
				fmt.Fprintf(&b, "<i>...and %d more</i>\n", info.value.Count-maxListedUpdates)
				break
			}
			fmt.Fprintf(&b, "• %s\n", esc(pkg.Name))
		}
		if info.stale {
			b.WriteString(staleNote(info.age))
		}
		if d.actions.Has(types.ActionUpgrade) {
			rows = append(rows, []types.Button{{Text: "⬆️ Upgrade all", Data: "confirm_upgrade"}})
		}
	}

	rows = append(rows, []types.Button{{Text: "🔄 Refresh", Data: "menu_updates"}, backButton})
	return View{Text: strings.TrimRight(b.String(), "\n"), Buttons: rows}, nil
}

// shorten cuts s to n runes
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ============================================
// Privileged actions
// ============================================

// confirmedKinds are the actions listed on the controls screen
var confirmedKinds = []types.ActionKind{
	types.ActionReboot,
	types.ActionShutdown,
	types.ActionMaintenance,
	types.ActionUpgrade,
	types.ActionCleanup,
}

// ackText is sent before actions that may take the bot down with them
var ackText = map[types.ActionKind]string{
	types.ActionReboot:   "🔄 <b>Rebooting…</b>",
	types.ActionShutdown: "🛑 <b>Shutting down…</b>",
}

func (d *Dispatcher) controlsMenu() [][]types.Button {
	rows := [][]types.Button{
		{{Text: "🔄 Reboot", Data: "confirm_reboot"}, {Text: "🛑 Shutdown", Data: "confirm_shutdown"}},
	}
	var apt []types.Button
	if d.actions.Has(types.ActionUpgrade) {
		apt = append(apt, types.Button{Text: "⬆️ Upgrade", Data: "confirm_upgrade"})
	}
	if d.actions.Has(types.ActionCleanup) {
		apt = append(apt, types.Button{Text: "🗑 Cleanup", Data: "confirm_cleanup"})
	}
	if len(apt) > 0 {
		rows = append(rows, apt)
	}
	if d.actions.Has(types.ActionMaintenance) {
		rows = append(rows, []types.Button{{Text: "🧹 Maintenance", Data: "confirm_maintenance"}})
	}
	return append(rows, []types.Button{backButton})
}

func (d *Dispatcher) controlsText() string {
	text := "⚙️ <b>System Controls</b>\nChoose an action."
	for _, kind := range confirmedKinds {
		if d.confirms.pendingFor(kind) {
			text += fmt.Sprintf("\n⏳ %s awaiting confirmation", actionLabels[kind])
		}
	}
	return text
}

func (d *Dispatcher) handleControls(ctx context.Context, ev types.InboundEvent) (View, error) {
	return View{Text: d.controlsText(), Buttons: d.controlsMenu()}, nil
}

// requestAction records a pending request and asks for confirmation
func (d *Dispatcher) requestAction(kind types.ActionKind) handlerFunc {
	return func(ctx context.Context, ev types.InboundEvent) (View, error) {
		if !d.actions.Has(kind) {
			return View{
				Text:    fmt.Sprintf("🚫 %s is disabled.", actionLabels[kind]),
				Buttons: [][]types.Button{{controlsBack}},
			}, nil
		}

		req := d.confirms.request(kind, ev.SenderID)
		d.logger.Info("action requested",
			zap.String("kind", string(kind)),
			zap.String("request_id", req.ID),
		)

		token := fmt.Sprintf("action_%s:%s", strings.ToLower(string(kind)), req.ID)
		return View{
			Text: fmt.Sprintf("⚠️ <b>%s</b>\nConfirm within %s.",
				actionPrompts[kind], formatDuration(d.confirmTimeout)),
			Buttons: [][]types.Button{{{Text: "✅ Yes", Data: token}, cancelButton}},
		}, nil
	}
}

// confirmAction executes a pending request when the token matches
func (d *Dispatcher) confirmAction(kind types.ActionKind) handlerFunc {
	return func(ctx context.Context, ev types.InboundEvent) (View, error) {
		req, err := d.confirms.confirm(kind, ev.Args, ev.SenderID)
		if err != nil {
			d.logger.Info("confirmation rejected",
				zap.String("kind", string(kind)),
				zap.String("token", ev.Args),
				zap.Error(err),
			)
			return View{
				Text:    fmt.Sprintf("⌛ %s: confirmation expired or already handled.", actionLabels[kind]),
				Buttons: [][]types.Button{{controlsBack}},
			}, nil
		}

		view := View{Buttons: [][]types.Button{{backButton}}}
		if ack, ok := ackText[kind]; ok && d.early != nil {
			// The action may stop the process before a reply goes out.
			if err := d.early(ctx, d.reply(ev, View{Text: ack})); err != nil {
				d.logger.Warn("failed to acknowledge action", zap.String("kind", string(kind)), zap.Error(err))
			} else {
				view.acknowledged = true
			}
		}

		result := d.execute(ctx, req)
		if kind == types.ActionUpgrade || kind == types.ActionMaintenance {
			d.cache.Invalidate(keyUpdates)
		}
		view.Text = resultLine(kind, result)
		return view, nil
	}
}

// execute runs a confirmed or immediate request once
func (d *Dispatcher) execute(ctx context.Context, req *types.ActionRequest) types.ActionResult {
	req.State = types.StateExecuting
	d.logger.Info("action executing",
		zap.String("kind", string(req.Kind)),
		zap.String("request_id", req.ID),
		zap.Int64("issuer", req.Issuer),
	)

	result := d.actions.Execute(ctx, req)
	if result.Status == types.StatusSuccess {
		req.State = types.StateSucceeded
	} else {
		req.State = types.StateFailed
	}

	d.logger.Info("action finished",
		zap.String("kind", string(req.Kind)),
		zap.String("request_id", req.ID),
		zap.String("state", string(req.State)),
		zap.String("status", string(result.Status)),
	)
	return result
}

func (d *Dispatcher) handleCancel(ctx context.Context, ev types.InboundEvent) (View, error) {
	n := d.confirms.cancel()
	text := "Nothing to cancel."
	if n > 0 {
		text = "❎ Cancelled."
	}
	if ev.IsCallback() {
		return View{
			Text:    text + "\n\n" + d.controlsText(),
			Buttons: d.controlsMenu(),
		}, nil
	}
	return View{Text: text, Buttons: [][]types.Button{{menuButton}}}, nil
}
