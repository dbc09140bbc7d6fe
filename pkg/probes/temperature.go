package probes

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/homepanel/homepanel/pkg/types"
	"github.com/shirou/gopsutil/v3/host"
)

// SensorProbe implements TemperatureProbe using gopsutil sensors
type SensorProbe struct {
	read func(ctx context.Context) ([]host.TemperatureStat, error)
}

// NewSensorProbe creates a temperature probe
func NewSensorProbe() *SensorProbe {
	return &SensorProbe{read: host.SensorsTemperaturesWithContext}
}

// GetTemperatures returns valid readings sorted by sensor name. gopsutil
// reports partial results together with warnings; those are kept.
func (p *SensorProbe) GetTemperatures(ctx context.Context) ([]types.TemperatureReading, error) {
	stats, err := p.read(ctx)
	readings := filterReadings(stats)
	if len(readings) == 0 {
		if err == nil {
			err = fmt.Errorf("no sensors found")
		}
		return nil, fmt.Errorf("%w: temperatures: %v", ErrUnavailable, err)
	}
	return readings, nil
}

func filterReadings(stats []host.TemperatureStat) []types.TemperatureReading {
	readings := make([]types.TemperatureReading, 0, len(stats))
	for _, s := range stats {
		if s.Temperature <= 0 || math.IsNaN(s.Temperature) || math.IsInf(s.Temperature, 0) {
			continue
		}
		readings = append(readings, types.TemperatureReading{
			Sensor:  s.SensorKey,
			Celsius: round(s.Temperature, 1),
		})
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Sensor < readings[j].Sensor })
	return readings
}

// CPUTemperature picks the most CPU-like sensor, falling back to the
// hottest reading.
func CPUTemperature(readings []types.TemperatureReading) (types.TemperatureReading, bool) {
	if len(readings) == 0 {
		return types.TemperatureReading{}, false
	}

	best := -1
	bestScore := 0
	for i, r := range readings {
		key := strings.ToLower(r.Sensor)
		score := 0
		switch {
		case strings.Contains(key, "package"):
			score += 50
		case strings.Contains(key, "tctl") || strings.Contains(key, "tdie"):
			score += 40
		}
		if strings.Contains(key, "coretemp") || strings.Contains(key, "k10temp") {
			score += 20
		}
		if strings.Contains(key, "cpu") {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return readings[best], true
	}
	return Hottest(readings), true
}

// Hottest returns the highest reading
func Hottest(readings []types.TemperatureReading) types.TemperatureReading {
	var max types.TemperatureReading
	for _, r := range readings {
		if r.Celsius > max.Celsius {
			max = r
		}
	}
	return max
}

var _ TemperatureProbe = (*SensorProbe)(nil)
