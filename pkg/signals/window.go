package signals

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/models"
)

// ActiveWindow identifies the currently focused window.
type ActiveWindow struct {
	Title   string
	Process string
}

// WindowProber reads the focused window. The default implementation
// shells out to xprop; tests script it.
type WindowProber interface {
	Active(ctx context.Context) (ActiveWindow, error)
}

type xpropProber struct{}

func (xpropProber) Active(ctx context.Context) (ActiveWindow, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW").Output()
	if err != nil {
		return ActiveWindow{}, fmt.Errorf("querying active window: %w", err)
	}
	raw := string(out)
	idx := strings.Index(raw, "window id # ")
	if idx < 0 {
		return ActiveWindow{}, fmt.Errorf("no active window id in xprop output")
	}
	windowID := strings.TrimSpace(strings.SplitN(raw[idx+len("window id # "):], ",", 2)[0])

	var w ActiveWindow
	if out, err := exec.CommandContext(ctx, "xprop", "-id", windowID, "WM_NAME").Output(); err == nil {
		w.Title = xpropValue(string(out))
	}
	if out, err := exec.CommandContext(ctx, "xprop", "-id", windowID, "WM_CLASS").Output(); err == nil {
		parts := strings.Split(xpropValue(string(out)), ",")
		w.Process = strings.Trim(strings.TrimSpace(parts[len(parts)-1]), `"`)
	}
	return w, nil
}

func xpropValue(out string) string {
	if _, after, ok := strings.Cut(out, "="); ok {
		return strings.Trim(strings.TrimSpace(after), `"`)
	}
	return ""
}

// WindowSource monitors the focused window and emits state_changed when
// the title or owning process changes.
type WindowSource struct {
	*base
	prober WindowProber
	last   *ActiveWindow
}

// NewWindowSource builds the focus monitor. A nil prober selects xprop.
func NewWindowSource(cfg *config.WindowSignalConfig, prober WindowProber) *WindowSource {
	if prober == nil {
		prober = xpropProber{}
	}
	s := &WindowSource{
		base: newBase("window_focus_monitor", Metadata{
			Type:        "window_focus",
			DisplayName: "Window Focus",
			Description: "Monitors active window and focus changes",
		}, cfg.Interval),
		prober: prober,
	}
	s.base.poll = s.poll
	return s
}

func (s *WindowSource) poll(ctx context.Context) (*models.SignalEvent, error) {
	w, err := s.prober.Active(ctx)
	if err != nil {
		return nil, err
	}
	if s.last != nil && w == *s.last {
		return nil, nil
	}

	data := map[string]any{
		"window_title": w.Title,
		"process_name": w.Process,
	}
	if s.last != nil {
		data["previous_title"] = s.last.Title
		data["previous_process"] = s.last.Process
	}
	s.last = &w
	s.setLastValue(map[string]any{"window_title": w.Title, "process_name": w.Process})

	ev := models.NewSignalEvent(models.EventStateChanged, data, nil)
	return &ev, nil
}

// CurrentValues probes the focused window immediately.
func (s *WindowSource) CurrentValues(ctx context.Context) (map[string]any, error) {
	w, err := s.prober.Active(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"window_title": w.Title, "process_name": w.Process}, nil
}
