package signals

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/models"
)

// Catalog lists every source type the engine knows how to build.
func Catalog() []Metadata {
	return []Metadata{
		{Type: "cpu", DisplayName: "CPU & Memory", Description: "Monitors CPU usage percentage and RAM utilization"},
		{Type: "battery", DisplayName: "Battery", Description: "Monitors battery level and charging status"},
		{Type: "network", DisplayName: "Network", Description: "Monitors network connectivity, interfaces and transfer rates"},
		{Type: "window_focus", DisplayName: "Window Focus", Description: "Monitors active window and focus changes"},
		{Type: "filesystem", DisplayName: "Filesystem", Description: "Watches directories for file changes"},
		{Type: "clipboard", DisplayName: "Clipboard", Description: "Monitors clipboard content changes (requires permission)", RequiresPermission: true, Permission: config.PermClipboard},
	}
}

// Manager owns the source instances and their shared lifecycle.
type Manager struct {
	sources map[string]Source
	order   []string
}

// NewManager builds the enabled sources from configuration. The clipboard
// source is built only when both enabled and permission-granted.
func NewManager(cfg *config.SignalsConfig, perms *config.Permissions) *Manager {
	m := &Manager{sources: make(map[string]Source)}

	if cfg.CPU != nil && config.BoolVal(cfg.CPU.Enabled) {
		m.add(NewCPUSource(cfg.CPU, nil))
	}
	if cfg.Battery != nil && config.BoolVal(cfg.Battery.Enabled) {
		m.add(NewBatterySource(cfg.Battery, nil))
	}
	if cfg.Network != nil && config.BoolVal(cfg.Network.Enabled) {
		m.add(NewNetworkSource(cfg.Network, nil))
	}
	if cfg.Window != nil && config.BoolVal(cfg.Window.Enabled) {
		m.add(NewWindowSource(cfg.Window, nil))
	}
	if cfg.Filesystem != nil && config.BoolVal(cfg.Filesystem.Enabled) && len(cfg.Filesystem.Paths) > 0 {
		m.add(NewFilesystemSource(cfg.Filesystem))
	}
	if cfg.Clipboard != nil && config.BoolVal(cfg.Clipboard.Enabled) {
		if perms != nil && perms.Granted(config.PermClipboard) {
			m.add(NewClipboardSource(cfg.Clipboard, nil))
		} else {
			slog.Info("Clipboard source enabled but permission not granted, skipping")
		}
	}
	return m
}

func (m *Manager) add(s Source) {
	m.sources[s.Type()] = s
	m.order = append(m.order, s.Type())
}

// Get returns the source instance for a type.
func (m *Manager) Get(sourceType string) (Source, bool) {
	s, ok := m.sources[sourceType]
	return s, ok
}

// StartAll starts every source. Individual failures are logged and do not
// stop the rest.
func (m *Manager) StartAll(ctx context.Context) {
	for _, typ := range m.order {
		s := m.sources[typ]
		if err := s.Start(ctx); err != nil {
			slog.Error("Failed to start signal source", "source", s.Name(), "error", err)
		}
	}
}

// StopAll stops every source and waits for their producer loops.
func (m *Manager) StopAll() {
	for _, typ := range m.order {
		m.sources[typ].Stop()
	}
}

// SubscribeAll attaches one handler to every source.
func (m *Manager) SubscribeAll(fn func(models.SignalEvent)) {
	for _, typ := range m.order {
		m.sources[typ].Subscribe(fn)
	}
}

// Statuses reports each source's live status, ordered by type.
func (m *Manager) Statuses() []Status {
	out := make([]Status, 0, len(m.sources))
	for _, typ := range m.order {
		out = append(out, m.sources[typ].Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// CurrentValues samples a source on demand when it supports that.
func (m *Manager) CurrentValues(ctx context.Context, sourceType string) (map[string]any, error) {
	s, ok := m.sources[sourceType]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %s", sourceType)
	}
	if snap, ok := s.(Snapshotter); ok {
		return snap.CurrentValues(ctx)
	}
	return s.Status().LastValue, nil
}
