package signals

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/models"
)

// BatteryReading is one sample of battery state.
type BatteryReading struct {
	Percent float64
	Plugged bool
}

// BatterySampler reads battery state. Available reports false on hosts
// without a battery sensor; the source then stays quiet.
type BatterySampler interface {
	Available() bool
	Read() (BatteryReading, error)
}

// sysfsBattery reads /sys/class/power_supply, the kernel's battery
// interface on Linux.
type sysfsBattery struct {
	root string
}

func newSysfsBattery(root string) *sysfsBattery {
	return &sysfsBattery{root: root}
}

func (s *sysfsBattery) batteryDir() (string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "BAT") {
			return filepath.Join(s.root, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no battery under %s", s.root)
}

func (s *sysfsBattery) Available() bool {
	_, err := s.batteryDir()
	return err == nil
}

func (s *sysfsBattery) Read() (BatteryReading, error) {
	dir, err := s.batteryDir()
	if err != nil {
		return BatteryReading{}, err
	}
	capRaw, err := os.ReadFile(filepath.Join(dir, "capacity"))
	if err != nil {
		return BatteryReading{}, fmt.Errorf("reading capacity: %w", err)
	}
	percent, err := strconv.ParseFloat(strings.TrimSpace(string(capRaw)), 64)
	if err != nil {
		return BatteryReading{}, fmt.Errorf("parsing capacity: %w", err)
	}
	statusRaw, err := os.ReadFile(filepath.Join(dir, "status"))
	if err != nil {
		return BatteryReading{}, fmt.Errorf("reading status: %w", err)
	}
	status := strings.TrimSpace(string(statusRaw))
	return BatteryReading{
		Percent: percent,
		Plugged: status == "Charging" || status == "Full",
	}, nil
}

// BatterySource monitors battery level and charging state. It emits when
// the level moves by at least one percent, on plugged/unplugged
// transitions, and on threshold crossings.
type BatterySource struct {
	*base
	sampler     BatterySampler
	thresholds  *ThresholdTracker
	available   bool
	lastPercent *float64
	lastPlugged *bool
}

// NewBatterySource builds the battery monitor. A nil sampler selects the
// sysfs reader rooted at cfg.SysfsPath.
func NewBatterySource(cfg *config.BatterySignalConfig, sampler BatterySampler) *BatterySource {
	if sampler == nil {
		sampler = newSysfsBattery(cfg.SysfsPath)
	}
	s := &BatterySource{
		base: newBase("battery_monitor", Metadata{
			Type:        "battery",
			DisplayName: "Battery",
			Description: "Monitors battery level and charging status",
		}, cfg.Interval),
		sampler:    sampler,
		thresholds: NewThresholdTracker(),
		available:  sampler.Available(),
	}
	s.thresholds.Track("battery", cfg.Low, cfg.High)
	s.base.poll = s.poll
	return s
}

func (s *BatterySource) poll(_ context.Context) (*models.SignalEvent, error) {
	if !s.available {
		return nil, nil
	}
	r, err := s.sampler.Read()
	if err != nil {
		return nil, err
	}

	var changes []any
	eventType := models.EventValueChanged

	if s.lastPlugged != nil && r.Plugged != *s.lastPlugged {
		changes = append(changes, map[string]any{
			"type":     "charging_state",
			"previous": pluggedLabel(*s.lastPlugged),
			"current":  pluggedLabel(r.Plugged),
		})
		eventType = models.EventStateChanged
	}

	// Zone crossings are checked on every sample, not only when the
	// one-percent delta gate opens.
	state, crossed := s.thresholds.Check("battery", r.Percent)
	if crossed || s.lastPercent == nil || math.Abs(r.Percent-*s.lastPercent) >= 1 {
		entry := map[string]any{
			"type":            "level",
			"current":         r.Percent,
			"threshold_state": string(state),
		}
		if s.lastPercent != nil {
			entry["previous"] = *s.lastPercent
		}
		changes = append(changes, entry)
		if crossed {
			eventType = models.EventThresholdCrossed
		}
	}

	p, pl := r.Percent, r.Plugged
	s.lastPercent, s.lastPlugged = &p, &pl
	s.setLastValue(map[string]any{"percent": r.Percent, "plugged": r.Plugged})

	if len(changes) == 0 {
		return nil, nil
	}
	ev := models.NewSignalEvent(eventType, map[string]any{
		"percent": r.Percent,
		"plugged": r.Plugged,
		"changes": changes,
	}, map[string]any{"battery_available": true})
	return &ev, nil
}

// CurrentValues samples immediately, outside the polling cadence.
func (s *BatterySource) CurrentValues(_ context.Context) (map[string]any, error) {
	if !s.available {
		return map[string]any{"battery_available": false}, nil
	}
	r, err := s.sampler.Read()
	if err != nil {
		return nil, err
	}
	return map[string]any{"percent": r.Percent, "plugged": r.Plugged, "battery_available": true}, nil
}

func pluggedLabel(plugged bool) string {
	if plugged {
		return "plugged"
	}
	return "unplugged"
}
