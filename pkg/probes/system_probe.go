package probes

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/homepanel/homepanel/pkg/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// DiskTarget is a mountpoint shown on the dashboard
type DiskTarget struct {
	Label string
	Path  string
}

// GoSystemProbe implements SystemProbe using gopsutil
type GoSystemProbe struct {
	disks []DiskTarget

	// CPU sampling
	mu               sync.RWMutex
	lastCPUTimes     cpu.TimesStat
	cachedCPUPercent float64
	sampleInterval   time.Duration
	stopSampler      chan struct{}
	stopOnce         sync.Once
}

// NewGoSystemProbe creates a system probe and starts its CPU sampler. The
// root filesystem is always included; extra disks follow it.
func NewGoSystemProbe(extra ...DiskTarget) *GoSystemProbe {
	disks := []DiskTarget{{Label: "Root", Path: "/"}}
	for _, d := range extra {
		if d.Path != "" && d.Path != "/" {
			disks = append(disks, d)
		}
	}

	probe := &GoSystemProbe{
		disks:          disks,
		sampleInterval: time.Second,
		stopSampler:    make(chan struct{}),
	}

	// Initialize CPU baseline
	if times, err := cpu.Times(false); err == nil && len(times) > 0 {
		probe.lastCPUTimes = times[0]
	}

	go probe.cpuSampler()

	return probe
}

// cpuSampler refreshes the system CPU percentage in the background so
// GetMetrics never has to block on a sampling window.
func (p *GoSystemProbe) cpuSampler() {
	ticker := time.NewTicker(p.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sampleCPU()
		case <-p.stopSampler:
			return
		}
	}
}

func (p *GoSystemProbe) sampleCPU() {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := times[0]
	deltaTotal := current.Total() - p.lastCPUTimes.Total()
	deltaIdle := (current.Idle + current.Iowait) - (p.lastCPUTimes.Idle + p.lastCPUTimes.Iowait)
	if deltaTotal > 0 {
		p.cachedCPUPercent = cpuPercent(deltaTotal, deltaIdle)
	}
	p.lastCPUTimes = current
}

func cpuPercent(deltaTotal, deltaIdle float64) float64 {
	pct := round(100*(deltaTotal-deltaIdle)/deltaTotal, 1)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Stop stops the CPU sampler
func (p *GoSystemProbe) Stop() {
	p.stopOnce.Do(func() { close(p.stopSampler) })
}

// GetMetrics collects the dashboard snapshot. Memory failures are fatal for
// the snapshot; a missing disk is reported in Errors.
func (p *GoSystemProbe) GetMetrics(ctx context.Context) (*types.SystemMetrics, error) {
	hostname, _ := os.Hostname()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: memory: %v", ErrUnavailable, err)
	}

	cores := runtime.NumCPU()
	if c, err := cpu.CountsWithContext(ctx, true); err == nil && c > 0 {
		cores = c
	}

	p.mu.RLock()
	cpuPct := p.cachedCPUPercent
	p.mu.RUnlock()

	metrics := &types.SystemMetrics{
		Hostname: hostname,
		Platform: runtime.GOOS,
		CPU:      types.CPUMetrics{System: cpuPct, Cores: cores},
		Memory: types.SystemMemory{
			Total:       vm.Total,
			Available:   vm.Available,
			Used:        vm.Used,
			UsedPercent: round(vm.UsedPercent, 1),
		},
	}

	if up, err := host.UptimeWithContext(ctx); err == nil {
		metrics.Uptime = time.Duration(up) * time.Second
	}

	for _, d := range p.disks {
		usage, err := disk.UsageWithContext(ctx, d.Path)
		if err != nil {
			metrics.Errors = append(metrics.Errors, fmt.Sprintf("disk %s: %v", d.Label, err))
			continue
		}
		metrics.Disks = append(metrics.Disks, types.DiskUsage{
			Label:       d.Label,
			Path:        d.Path,
			Total:       usage.Total,
			Used:        usage.Used,
			Free:        usage.Free,
			UsedPercent: round(usage.UsedPercent, 1),
		})
	}

	return metrics, nil
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	shift := float64(1)
	for i := 0; i < decimals; i++ {
		shift *= 10
	}
	if val < 0 {
		return -float64(int(-val*shift+0.5)) / shift
	}
	return float64(int(val*shift+0.5)) / shift
}

var _ SystemProbe = (*GoSystemProbe)(nil)
