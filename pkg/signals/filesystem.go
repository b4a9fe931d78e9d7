package signals

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/models"
)

type fsEntry struct {
	path string
	op   fsnotify.Op
	at   time.Time
}

// FilesystemSource watches configured paths through the OS notification
// API and republishes matching changes as created/modified/deleted/moved
// events. The watcher callback is bridged onto the producer loop through
// a bounded queue; when the queue saturates, the oldest entries are
// dropped so the freshest changes survive.
type FilesystemSource struct {
	*base
	cfg *config.FilesystemSignalConfig

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	queue   chan fsEntry
	bridge  sync.WaitGroup
}

// NewFilesystemSource builds the filesystem watcher source.
func NewFilesystemSource(cfg *config.FilesystemSignalConfig) *FilesystemSource {
	s := &FilesystemSource{
		base: newBase("filesystem_monitor", Metadata{
			Type:        "filesystem",
			DisplayName: "Filesystem",
			Description: "Watches directories for file changes",
		}, cfg.Interval),
		cfg:   cfg,
		queue: make(chan fsEntry, cfg.QueueSize),
	}
	s.base.poll = s.poll
	return s
}

// Start opens the OS watcher, registers the configured paths and then
// launches the producer loop.
func (s *FilesystemSource) Start(ctx context.Context) error {
	s.watchMu.Lock()
	if s.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			s.watchMu.Unlock()
			return fmt.Errorf("creating filesystem watcher: %w", err)
		}
		s.watcher = w
		for _, p := range s.cfg.Paths {
			if err := s.addPath(p); err != nil {
				s.log.Warn("Failed to watch path", "path", p, "error", err)
			}
		}
		s.bridge.Add(1)
		go s.bridgeLoop(w)
	}
	s.watchMu.Unlock()
	return s.base.Start(ctx)
}

// Stop halts the producer loop and closes the OS watcher.
func (s *FilesystemSource) Stop() {
	s.base.Stop()
	s.watchMu.Lock()
	w := s.watcher
	s.watcher = nil
	s.watchMu.Unlock()
	if w != nil {
		w.Close()
		s.bridge.Wait()
	}
}

func (s *FilesystemSource) addPath(root string) error {
	if !config.BoolVal(s.cfg.Recursive) {
		return s.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return s.watcher.Add(p)
		}
		return nil
	})
}

// bridgeLoop moves watcher callbacks into the bounded queue. On a full
// queue the oldest entry is evicted.
func (s *FilesystemSource) bridgeLoop(w *fsnotify.Watcher) {
	defer s.bridge.Done()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Chmod != 0 && ev.Op&^fsnotify.Chmod == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 && config.BoolVal(s.cfg.Recursive) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.Add(ev.Name); err != nil {
						s.log.Warn("Failed to watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			if !s.matches(ev.Name) {
				continue
			}
			entry := fsEntry{path: ev.Name, op: ev.Op, at: time.Now().UTC()}
			for {
				select {
				case s.queue <- entry:
				default:
					select {
					case <-s.queue:
						s.log.Debug("Filesystem queue full, dropping oldest entry")
					default:
					}
					continue
				}
				break
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Error("Filesystem watcher error", "error", err)
		}
	}
}

// matches applies ignore patterns first, then include patterns, against
// the base name. Ignore patterns also match any path component, so a
// ".git" ignore covers everything beneath it.
func (s *FilesystemSource) matches(p string) bool {
	name := filepath.Base(p)
	for _, pat := range s.cfg.IgnorePatterns {
		if ok, _ := path.Match(pat, name); ok {
			return false
		}
		for _, part := range strings.Split(filepath.ToSlash(p), "/") {
			if ok, _ := path.Match(pat, part); ok {
				return false
			}
		}
	}
	if len(s.cfg.Patterns) == 0 {
		return true
	}
	for _, pat := range s.cfg.Patterns {
		if ok, _ := path.Match(pat, name); ok {
			return true
		}
	}
	return false
}

func (s *FilesystemSource) poll(_ context.Context) (*models.SignalEvent, error) {
	select {
	case entry := <-s.queue:
		eventType := opEventType(entry.op)
		if eventType == "" {
			return nil, nil
		}
		isDir := false
		if info, err := os.Stat(entry.path); err == nil {
			isDir = info.IsDir()
		}
		ev := models.NewSignalEvent(eventType, map[string]any{
			"path":         entry.path,
			"file_name":    filepath.Base(entry.path),
			"is_directory": isDir,
			"observed_at":  entry.at.Format(time.RFC3339Nano),
		}, nil)
		return &ev, nil
	default:
		return nil, nil
	}
}

func opEventType(op fsnotify.Op) models.EventType {
	switch {
	case op&fsnotify.Create != 0:
		return models.EventCreated
	case op&fsnotify.Write != 0:
		return models.EventModified
	case op&fsnotify.Remove != 0:
		return models.EventDeleted
	case op&fsnotify.Rename != 0:
		return models.EventMoved
	default:
		return ""
	}
}
