package signals

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/models"
)

type scriptedClipboard struct {
	texts []string
}

func (s *scriptedClipboard) Read(context.Context) (string, error) {
	text := s.texts[0]
	if len(s.texts) > 1 {
		s.texts = s.texts[1:]
	}
	return text, nil
}

func clipboardConfig(maxBytes int) *config.ClipboardSignalConfig {
	return &config.ClipboardSignalConfig{
		Enabled:  config.BoolPtr(true),
		Interval: 1,
		MaxBytes: maxBytes,
	}
}

func TestClipboardEmitsOnHashChange(t *testing.T) {
	src := NewClipboardSource(clipboardConfig(0), &scriptedClipboard{
		texts: []string{"hello", "hello", "world!"},
	})

	ev, err := src.poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev, "first read emits")
	assert.Equal(t, models.EventValueChanged, ev.EventType)
	assert.Equal(t, 5, ev.Data["content_length"])

	ev, err = src.poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ev, "unchanged content stays quiet")

	ev, err = src.poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "world!", ev.Data["content"])
	assert.Equal(t, 5, ev.Data["previous_length"])
}

func TestClipboardTruncationKeepsRunesWhole(t *testing.T) {
	// Two-byte runes force every odd byte cap onto a rune boundary.
	content := strings.Repeat("é", 80)
	src := NewClipboardSource(clipboardConfig(101), &scriptedClipboard{texts: []string{content}})

	ev, err := src.poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev)

	got := ev.Data["content"].(string)
	assert.LessOrEqual(t, len(got), 101)
	assert.True(t, utf8.ValidString(got), "cap must not split a rune")
	assert.Equal(t, 100, len(got))

	preview := ev.Data["content_preview"].(string)
	assert.True(t, utf8.ValidString(preview))
	assert.True(t, strings.HasSuffix(preview, "..."))
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 10))
	assert.Equal(t, "ab", truncateUTF8("abc", 2))
	assert.Equal(t, "é", truncateUTF8("éé", 3))
	assert.Equal(t, "", truncateUTF8("é", 1))
}
