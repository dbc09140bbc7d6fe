package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/homepanel/homepanel/pkg/agent"
	"github.com/homepanel/homepanel/pkg/probes"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe [name...]",
	Short: "Print probe output as JSON",
	Long: `Run probes once and print their output as JSON. With no names every
probe runs. Disabled integrations and failures are reported inline.

Probes: ` + strings.Join(probeNames(), ", "),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

type probeFunc func(ctx context.Context, set probes.Set) (any, error)

var probeFuncs = map[string]probeFunc{
	"system": func(ctx context.Context, set probes.Set) (any, error) {
		if set.System == nil {
			return nil, probes.ErrDisabled
		}
		return set.System.GetMetrics(ctx)
	},
	"temperatures": func(ctx context.Context, set probes.Set) (any, error) {
		if set.Temperatures == nil {
			return nil, probes.ErrDisabled
		}
		return set.Temperatures.GetTemperatures(ctx)
	},
	"power": func(ctx context.Context, set probes.Set) (any, error) {
		if set.Power == nil {
			return nil, probes.ErrDisabled
		}
		return set.Power.GetReading(ctx)
	},
	"containers": func(ctx context.Context, set probes.Set) (any, error) {
		if set.Containers == nil {
			return nil, probes.ErrDisabled
		}
		return set.Containers.ListContainers(ctx)
	},
	"torrents": func(ctx context.Context, set probes.Set) (any, error) {
		if set.Torrents == nil {
			return nil, probes.ErrDisabled
		}
		return set.Torrents.GetStats(ctx)
	},
	"network": func(ctx context.Context, set probes.Set) (any, error) {
		if set.Network == nil {
			return nil, probes.ErrDisabled
		}
		return set.Network.GetNetwork(ctx)
	},
	"logins": func(ctx context.Context, set probes.Set) (any, error) {
		if set.Logins == nil {
			return nil, probes.ErrDisabled
		}
		return set.Logins.GetLogins(ctx)
	},
	"processes": func(ctx context.Context, set probes.Set) (any, error) {
		if set.Processes == nil {
			return nil, probes.ErrDisabled
		}
		return set.Processes.GetProcesses(ctx)
	},
	"updates": func(ctx context.Context, set probes.Set) (any, error) {
		if set.Updates == nil {
			return nil, probes.ErrDisabled
		}
		return set.Updates.GetUpdates(ctx)
	},
}

func probeNames() []string {
	names := make([]string, 0, len(probeFuncs))
	for name := range probeFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// collectProbes runs the named probes (all when names is empty). Each
// result is either the probe output or {"error": "..."}.
func collectProbes(ctx context.Context, set probes.Set, names []string) (map[string]any, error) {
	if len(names) == 0 {
		names = probeNames()
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		fn, ok := probeFuncs[name]
		if !ok {
			return nil, fmt.Errorf("unknown probe %q (available: %s)", name, strings.Join(probeNames(), ", "))
		}
		v, err := fn(ctx, set)
		if err != nil {
			out[name] = map[string]string{"error": err.Error()}
			continue
		}
		out[name] = v
	}
	return out, nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	system := probes.NewGoSystemProbe(probes.DiskTarget{Label: cfg.DataDiskLabel, Path: cfg.DataDiskPath})
	defer system.Stop()
	set := agent.BuildProbes(cfg, system)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.RequestTimeout)
	defer cancel()

	out, err := collectProbes(ctx, set, args)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
