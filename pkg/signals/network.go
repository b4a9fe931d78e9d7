package signals

import (
	"context"
	"math"
	"sort"
	"time"

	gopsnet "github.com/shirou/gopsutil/v4/net"

	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/models"
)

// NetworkSample is one observation of the host's network state.
type NetworkSample struct {
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
	// Interfaces holds the names of non-loopback interfaces that are up.
	Interfaces []string
}

// NetworkSampler abstracts the psutil calls so tests can script samples.
type NetworkSampler interface {
	Sample(ctx context.Context) (NetworkSample, error)
}

type gopsutilNetSampler struct{}

func (gopsutilNetSampler) Sample(ctx context.Context) (NetworkSample, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return NetworkSample{}, err
	}
	ifaces, err := gopsnet.InterfacesWithContext(ctx)
	if err != nil {
		return NetworkSample{}, err
	}
	var s NetworkSample
	if len(counters) > 0 {
		s.BytesSent = counters[0].BytesSent
		s.BytesRecv = counters[0].BytesRecv
		s.PacketsSent = counters[0].PacketsSent
		s.PacketsRecv = counters[0].PacketsRecv
	}
	for _, iface := range ifaces {
		if iface.Name == "lo" {
			continue
		}
		up := false
		loopback := false
		for _, flag := range iface.Flags {
			if flag == "up" {
				up = true
			}
			if flag == "loopback" {
				loopback = true
			}
		}
		if up && !loopback {
			s.Interfaces = append(s.Interfaces, iface.Name)
		}
	}
	sort.Strings(s.Interfaces)
	return s, nil
}

// NetworkSource monitors connectivity and transfer rates. It emits when
// connectivity flips or the set of up interfaces changes.
type NetworkSource struct {
	*base
	sampler NetworkSampler

	lastSample    *NetworkSample
	lastConnected *bool
	lastPoll      time.Time
}

// NewNetworkSource builds the network monitor. A nil sampler selects gopsutil.
func NewNetworkSource(cfg *config.NetworkSignalConfig, sampler NetworkSampler) *NetworkSource {
	if sampler == nil {
		sampler = gopsutilNetSampler{}
	}
	s := &NetworkSource{
		base: newBase("network_monitor", Metadata{
			Type:        "network",
			DisplayName: "Network",
			Description: "Monitors network connectivity, interfaces and transfer rates",
		}, cfg.Interval),
		sampler: sampler,
	}
	s.base.poll = s.poll
	return s
}

func (s *NetworkSource) poll(ctx context.Context) (*models.SignalEvent, error) {
	now := time.Now()
	sample, err := s.sampler.Sample(ctx)
	if err != nil {
		return nil, err
	}
	connected := len(sample.Interfaces) > 0

	var changes []any
	eventType := models.EventValueChanged

	if s.lastConnected != nil && connected != *s.lastConnected {
		changes = append(changes, map[string]any{
			"type":     "connectivity",
			"previous": connectivityLabel(*s.lastConnected),
			"current":  connectivityLabel(connected),
		})
		eventType = models.EventStateChanged
	}
	if s.lastSample != nil && !equalStrings(sample.Interfaces, s.lastSample.Interfaces) {
		changes = append(changes, map[string]any{
			"type":     "interfaces",
			"previous": s.lastSample.Interfaces,
			"current":  sample.Interfaces,
		})
		eventType = models.EventStateChanged
	}

	uploadRate, downloadRate := 0.0, 0.0
	if s.lastSample != nil && !s.lastPoll.IsZero() {
		elapsed := now.Sub(s.lastPoll).Seconds()
		if elapsed > 0 {
			uploadRate = float64(sample.BytesSent-s.lastSample.BytesSent) / elapsed
			downloadRate = float64(sample.BytesRecv-s.lastSample.BytesRecv) / elapsed
		}
	}

	s.lastSample = &sample
	s.lastConnected = &connected
	s.lastPoll = now
	s.setLastValue(map[string]any{
		"connected":          connected,
		"interfaces":         sample.Interfaces,
		"upload_rate_mbps":   toMbps(uploadRate),
		"download_rate_mbps": toMbps(downloadRate),
	})

	if len(changes) == 0 {
		return nil, nil
	}
	ev := models.NewSignalEvent(eventType, map[string]any{
		"connected":           connected,
		"interfaces":          sample.Interfaces,
		"upload_rate_bytes":   uploadRate,
		"download_rate_bytes": downloadRate,
		"upload_rate_mbps":    toMbps(uploadRate),
		"download_rate_mbps":  toMbps(downloadRate),
		"total_bytes_sent":    sample.BytesSent,
		"total_bytes_recv":    sample.BytesRecv,
		"changes":             changes,
	}, map[string]any{
		"packets_sent": sample.PacketsSent,
		"packets_recv": sample.PacketsRecv,
	})
	return &ev, nil
}

// CurrentValues samples immediately, outside the polling cadence.
func (s *NetworkSource) CurrentValues(ctx context.Context) (map[string]any, error) {
	sample, err := s.sampler.Sample(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"connected":        len(sample.Interfaces) > 0,
		"interfaces":       sample.Interfaces,
		"total_bytes_sent": sample.BytesSent,
		"total_bytes_recv": sample.BytesRecv,
	}, nil
}

func connectivityLabel(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toMbps(bytesPerSec float64) float64 {
	return math.Round(bytesPerSec/(1<<20)*100) / 100
}
