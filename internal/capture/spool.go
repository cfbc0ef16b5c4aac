package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// SpoolSource reads frames from a spool directory that a camera daemon
// writes encoded images into. Each Capture consumes the oldest pending file,
// removing it from the spool, and blocks on fsnotify events when the spool
// is empty.
type SpoolSource struct {
	dir     string
	watcher *fsnotify.Watcher
}

var _ FrameSource = (*SpoolSource)(nil)

func NewSpoolSource(dir string) (*SpoolSource, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create spool directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create spool watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("could not watch spool directory %s: %w", dir, err)
	}

	return &SpoolSource{dir: dir, watcher: watcher}, nil
}

func isFrameFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func (s *SpoolSource) nextPending() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("could not read spool directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isFrameFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(s.dir, names[0]), nil
}

func (s *SpoolSource) Capture(ctx context.Context) ([]byte, error) {
	for {
		path, err := s.nextPending()
		if err != nil {
			return nil, err
		}
		if path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("could not read spooled frame %s: %w", path, err)
			}
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("could not consume spooled frame %s: %w", path, err)
			}
			return data, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil, fmt.Errorf("spool watcher closed")
			}
			// Re-scan on writes/creates; other events just loop.
			_ = event
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil, fmt.Errorf("spool watcher closed")
			}
			return nil, fmt.Errorf("spool watcher error: %w", err)
		}
	}
}

func (s *SpoolSource) Close() error {
	return s.watcher.Close()
}
