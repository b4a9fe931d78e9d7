package signals

import (
	"context"
	"math"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/models"
)

// CPUMetrics is one sample of the metrics the cpu source watches.
type CPUMetrics struct {
	CPUPercent float64
	RAMPercent float64
	RAMUsed    uint64
	RAMTotal   uint64
}

// CPUSampler abstracts the psutil calls so tests can script samples.
type CPUSampler interface {
	Sample(ctx context.Context) (CPUMetrics, error)
}

type gopsutilSampler struct{}

func (gopsutilSampler) Sample(ctx context.Context) (CPUMetrics, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return CPUMetrics{}, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return CPUMetrics{}, err
	}
	m := CPUMetrics{RAMPercent: vm.UsedPercent, RAMUsed: vm.Used, RAMTotal: vm.Total}
	if len(percents) > 0 {
		m.CPUPercent = percents[0]
	}
	return m, nil
}

// CPUSource monitors CPU usage and RAM utilization. It emits when either
// metric moves by at least the configured step from its last emitted
// value, or when a threshold zone boundary is crossed.
type CPUSource struct {
	*base
	sampler    CPUSampler
	thresholds *ThresholdTracker
	step       float64
	lastCPU    *float64
	lastRAM    *float64
}

// NewCPUSource builds the cpu/ram monitor. A nil sampler selects gopsutil.
func NewCPUSource(cfg *config.CPUSignalConfig, sampler CPUSampler) *CPUSource {
	if sampler == nil {
		sampler = gopsutilSampler{}
	}
	s := &CPUSource{
		base: newBase("cpu_ram_monitor", Metadata{
			Type:        "cpu",
			DisplayName: "CPU & Memory",
			Description: "Monitors CPU usage percentage and RAM utilization",
		}, cfg.Interval),
		sampler:    sampler,
		thresholds: NewThresholdTracker(),
		step:       cfg.ChangeStep,
	}
	s.thresholds.Track("cpu", cfg.CPULow, cfg.CPUHigh)
	s.thresholds.Track("ram", cfg.MemoryLow, cfg.MemoryHigh)
	s.base.poll = s.poll
	return s
}

func (s *CPUSource) poll(ctx context.Context) (*models.SignalEvent, error) {
	m, err := s.sampler.Sample(ctx)
	if err != nil {
		return nil, err
	}

	var changes []any
	crossed := false

	// The threshold machine runs on every sample: a zone crossing is
	// salient even when the delta stays under the change step.
	check := func(metric string, value float64, last **float64) {
		state, c := s.thresholds.Check(metric, value)
		if !c && *last != nil && math.Abs(value-**last) < s.step {
			return
		}
		changes = append(changes, changeEntry(metric, value, *last, state, c))
		crossed = crossed || c
		v := value
		*last = &v
	}
	check("cpu", m.CPUPercent, &s.lastCPU)
	check("ram", m.RAMPercent, &s.lastRAM)

	snapshot := map[string]any{
		"cpu_percent":  m.CPUPercent,
		"ram_percent":  m.RAMPercent,
		"ram_used_gb":  toGB(m.RAMUsed),
		"ram_total_gb": toGB(m.RAMTotal),
	}
	if len(changes) == 0 {
		s.setLastValue(snapshot)
		return nil, nil
	}

	eventType := models.EventValueChanged
	if crossed {
		eventType = models.EventThresholdCrossed
	}
	data := models.CopyMap(snapshot)
	data["changes"] = changes
	ev := models.NewSignalEvent(eventType, data, nil)
	return &ev, nil
}

// CurrentValues samples immediately, outside the polling cadence.
func (s *CPUSource) CurrentValues(ctx context.Context) (map[string]any, error) {
	m, err := s.sampler.Sample(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"cpu_percent":  m.CPUPercent,
		"ram_percent":  m.RAMPercent,
		"ram_used_gb":  toGB(m.RAMUsed),
		"ram_total_gb": toGB(m.RAMTotal),
	}, nil
}

func changeEntry(metric string, value float64, previous *float64, state ThresholdState, crossed bool) map[string]any {
	entry := map[string]any{
		"metric":          metric,
		"value":           value,
		"threshold_state": string(state),
		"crossed":         crossed,
	}
	if previous != nil {
		entry["previous"] = *previous
	}
	return entry
}

func toGB(b uint64) float64 {
	return math.Round(float64(b)/(1<<30)*100) / 100
}
