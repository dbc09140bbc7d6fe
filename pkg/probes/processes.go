package probes

import (
	"context"
	"fmt"
	"sort"

	"github.com/homepanel/homepanel/pkg/types"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultTopProcesses is how many entries each ranking shows
const DefaultTopProcesses = 5

// ProcessProbe ranks running processes
type ProcessProbe interface {
	GetProcesses(ctx context.Context) (*types.ProcessList, error)
}

// GopsProcessProbe implements ProcessProbe with gopsutil
type GopsProcessProbe struct {
	top  int
	list func(ctx context.Context) ([]types.ProcessInfo, error)
}

// NewGopsProcessProbe creates a process probe
func NewGopsProcessProbe() *GopsProcessProbe {
	return &GopsProcessProbe{top: DefaultTopProcesses, list: listProcesses}
}

// listProcesses samples every process. Processes that exit or deny access
// mid-scan are skipped.
func listProcesses(ctx context.Context) ([]types.ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cpu, _ := p.CPUPercentWithContext(ctx)
		mem, _ := p.MemoryPercentWithContext(ctx)
		out = append(out, types.ProcessInfo{PID: p.Pid, Name: name, CPUPercent: cpu, MemPercent: mem})
	}
	return out, nil
}

// GetProcesses returns the top processes by CPU and by memory
func (p *GopsProcessProbe) GetProcesses(ctx context.Context) (*types.ProcessList, error) {
	samples, err := p.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: processes: %v", ErrUnavailable, err)
	}
	return topProcesses(samples, p.top), nil
}

// topProcesses ranks samples, ignoring idle ones with no CPU or memory
// share. Ties keep PID order.
func topProcesses(samples []types.ProcessInfo, n int) *types.ProcessList {
	active := make([]types.ProcessInfo, 0, len(samples))
	for _, s := range samples {
		if s.CPUPercent > 0 || s.MemPercent > 0 {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].PID < active[j].PID })

	byCPU := append([]types.ProcessInfo(nil), active...)
	sort.SliceStable(byCPU, func(i, j int) bool { return byCPU[i].CPUPercent > byCPU[j].CPUPercent })
	byMem := append([]types.ProcessInfo(nil), active...)
	sort.SliceStable(byMem, func(i, j int) bool { return byMem[i].MemPercent > byMem[j].MemPercent })

	if len(byCPU) > n {
		byCPU = byCPU[:n]
	}
	if len(byMem) > n {
		byMem = byMem[:n]
	}
	return &types.ProcessList{Total: len(samples), TopCPU: byCPU, TopMemory: byMem}
}

var _ ProcessProbe = (*GopsProcessProbe)(nil)
