package signals

import (
	"context"
	"fmt"
	"hash/fnv"
	"os/exec"
	"time"
	"unicode/utf8"

	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/models"
)

// ClipboardReader reads the current clipboard text. The default
// implementation tries xclip, then xsel.
type ClipboardReader interface {
	Read(ctx context.Context) (string, error)
}

type execClipboard struct{}

func (execClipboard) Read(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if out, err := exec.CommandContext(ctx, "xclip", "-selection", "clipboard", "-o").Output(); err == nil {
		return string(out), nil
	}
	out, err := exec.CommandContext(ctx, "xsel", "--clipboard", "--output").Output()
	if err != nil {
		return "", fmt.Errorf("reading clipboard (xclip/xsel): %w", err)
	}
	return string(out), nil
}

// ClipboardSource monitors clipboard content and emits when its hash
// changes. Privacy-sensitive: it is only started when the clipboard
// permission is granted, and content is capped at MaxBytes.
type ClipboardSource struct {
	*base
	reader   ClipboardReader
	maxBytes int
	lastHash *uint64
	lastLen  int
}

// NewClipboardSource builds the clipboard monitor. A nil reader selects
// the xclip/xsel implementation.
func NewClipboardSource(cfg *config.ClipboardSignalConfig, reader ClipboardReader) *ClipboardSource {
	if reader == nil {
		reader = execClipboard{}
	}
	s := &ClipboardSource{
		base: newBase("clipboard_monitor", Metadata{
			Type:               "clipboard",
			DisplayName:        "Clipboard",
			Description:        "Monitors clipboard content changes (requires permission)",
			RequiresPermission: true,
			Permission:         config.PermClipboard,
		}, cfg.Interval),
		reader:   reader,
		maxBytes: cfg.MaxBytes,
	}
	s.base.poll = s.poll
	return s
}

func (s *ClipboardSource) poll(ctx context.Context) (*models.SignalEvent, error) {
	content, err := s.reader.Read(ctx)
	if err != nil {
		return nil, err
	}
	if s.maxBytes > 0 {
		content = truncateUTF8(content, s.maxBytes)
	}

	h := fnv.New64a()
	h.Write([]byte(content))
	sum := h.Sum64()
	if s.lastHash != nil && sum == *s.lastHash {
		return nil, nil
	}

	previousLen := s.lastLen
	s.lastHash = &sum
	s.lastLen = len(content)

	preview := content
	if len(preview) > 100 {
		preview = truncateUTF8(preview, 100) + "..."
	}
	s.setLastValue(map[string]any{
		"content_length":  len(content),
		"content_preview": preview,
	})

	ev := models.NewSignalEvent(models.EventValueChanged, map[string]any{
		"content":         content,
		"content_length":  len(content),
		"content_preview": preview,
		"previous_length": previousLen,
	}, nil)
	return &ev, nil
}

// truncateUTF8 caps s at max bytes without splitting a rune: the cut
// backs up to the nearest rune boundary.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
