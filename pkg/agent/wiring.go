package agent

import (
	"net/http"

	"github.com/homepanel/homepanel/pkg/commands"
	"github.com/homepanel/homepanel/pkg/config"
	"github.com/homepanel/homepanel/pkg/probes"
	"github.com/homepanel/homepanel/pkg/types"
)

// BuildProbes creates the probe set for the enabled integrations. A nil
// system probe means the gopsutil one.
func BuildProbes(cfg *config.Config, system probes.SystemProbe) probes.Set {
	if system == nil {
		system = probes.NewGoSystemProbe(probes.DiskTarget{Label: cfg.DataDiskLabel, Path: cfg.DataDiskPath})
	}

	// Probe calls are bounded by their context; this only caps stuck reads
	// that ignore it.
	client := &http.Client{Timeout: 2 * cfg.RequestTimeout}

	set := probes.Set{
		System:       system,
		Temperatures: probes.NewSensorProbe(),
		Processes:    probes.NewGopsProcessProbe(),
	}
	if cfg.Features.Power && cfg.ShellyURL != "" {
		set.Power = probes.NewShellyProbe(cfg.ShellyURL, cfg.ShellySwitchID, client)
	}
	if cfg.Features.Docker {
		set.Containers = probes.NewDockerProbe(cfg.DockerSocket)
	}
	if cfg.Features.Qbit && cfg.QbitURL != "" {
		set.Torrents = probes.NewQbitClient(cfg.QbitURL, cfg.QbitUser, cfg.QbitPass, 2*cfg.RequestTimeout)
	}
	if cfg.Features.Network {
		set.Network = probes.NewNetProbe(cfg.PublicIPURL, client)
	}
	if cfg.Features.Logins {
		set.Logins = probes.NewWtmpProbe()
	}
	if cfg.Features.Maintenance {
		// Listing upgrades needs no privileges.
		set.Updates = probes.NewAptUpdatesProbe(&commands.ExecRunner{})
	}
	return set
}

// BuildRegistry creates the privileged action registry. Torrent actions are
// registered only when the torrent probe can also control the client, and
// are bounded by the request timeout like the reads they sit beside.
func BuildRegistry(cfg *config.Config, set probes.Set, runner commands.Runner) *commands.Registry {
	executors := []commands.Executor{
		commands.NewRebootExecutor(runner),
		commands.NewShutdownExecutor(runner),
	}
	if cfg.Features.Maintenance {
		executors = append(executors,
			commands.NewMaintenanceExecutor(runner),
			commands.NewUpgradeExecutor(runner),
			commands.NewCleanupExecutor(runner),
		)
	}
	if ctrl, ok := set.Torrents.(commands.TorrentController); ok {
		executors = append(executors,
			commands.NewTorrentPauseExecutor(ctrl),
			commands.NewTorrentResumeExecutor(ctrl),
		)
	}
	reg := commands.NewRegistry(executors...)
	reg.SetTimeout(types.ActionTorrentPause, cfg.RequestTimeout)
	reg.SetTimeout(types.ActionTorrentResume, cfg.RequestTimeout)
	return reg
}
