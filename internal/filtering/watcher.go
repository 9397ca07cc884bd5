package filtering

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// listExtensions are the file suffixes picked up from a lists directory.
var listExtensions = []string{".txt", ".list", ".hosts"}

// DirSources returns one Source per filter list file in dir, sorted by name.
// A missing directory yields no sources.
func DirSources(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lists dir: %w", err)
	}

	var out []Source
	for _, e := range entries {
		if e.IsDir() || !isListFile(e.Name()) {
			continue
		}
		out = append(out, Source{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func isListFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range listExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Watcher calls OnChange whenever a list file in Dir is written, created,
// renamed or removed. Callers are expected to coalesce bursts themselves.
type Watcher struct {
	dir      string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	onChange func()
}

// NewWatcher starts watching dir.
func NewWatcher(dir string, logger *slog.Logger, onChange func()) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("lists dir %q: %w", dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		logger:   logger,
		watcher:  fw,
		onChange: onChange,
	}, nil
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isListFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Debug("Filter list changed", "file", event.Name, "op", event.Op.String())
				w.onChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
