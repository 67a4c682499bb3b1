// Package watcher reports debounced file-system changes below a set of
// directories.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

// FileWatcher watches for file changes with debouncing
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	logger    logging.Logger
	mutex     sync.RWMutex
	done      chan struct{}
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles one debounced batch of events.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWatchFailed, "failed to create file watcher", err)
	}

	debouncer := &Debouncer{
		delay:   debounceDelay,
		events:  make(chan ChangeEvent, 256),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	fw := &FileWatcher{
		watcher:   watcher,
		debouncer: debouncer,
		filters:   make([]FileFilter, 0),
		handlers:  make([]ChangeHandler, 0),
		logger:    logger.WithComponent("watcher"),
		done:      make(chan struct{}),
	}

	return fw, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath adds a path to watch
func (fw *FileWatcher) AddPath(path string) error {
	cleanPath, err := cleanPath(path)
	if err != nil {
		return err
	}
	if err := fw.watcher.Add(cleanPath); err != nil {
		return errors.FileOperationError("watch", cleanPath, "failed to watch path", err)
	}
	return nil
}

// AddRecursive adds a directory and all subdirectories to watch. Hidden
// directories and node_modules are skipped.
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := cleanPath(root)
	if err != nil {
		return err
	}

	return filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.FileOperationError("watch", path, "failed to walk directory", err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != cleanRoot && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return errors.FileOperationError("watch", path, "failed to watch directory", err)
		}
		return nil
	})
}

// WatchList returns the watched directories.
func (fw *FileWatcher) WatchList() []string {
	list := fw.watcher.WatchList()
	sort.Strings(list)
	return list
}

func cleanPath(path string) (string, error) {
	if path == "" {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath, "empty watch path")
	}
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath, fmt.Sprintf("invalid watch path %q: %v", path, err))
	}
	return absPath, nil
}

func skipDir(name string) bool {
	return name == "node_modules" || (strings.HasPrefix(name, ".") && name != ".")
}

// Start starts the file watcher. It returns immediately; the watcher runs
// until ctx is cancelled or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.start(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	fw.debouncer.stop()

	select {
	case <-fw.done:
		return nil
	default:
		close(fw.done)
	}
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	info, statErr := os.Stat(event.Name)

	// Directories created at runtime are watched as well, including any
	// tree that was moved in at once.
	if statErr == nil && info.IsDir() {
		if event.Op.Has(fsnotify.Create) && !skipDir(filepath.Base(event.Name)) {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
			} else {
				fw.logger.Debug(ctx, "Watching new directory", "path", event.Name)
			}
			fw.queueDirectoryContents(ctx, event.Name)
		}
		return
	}

	if !fw.accept(event.Name) {
		return
	}

	var modTime time.Time
	var size int64
	if statErr == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Op.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Op.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Op.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		// Chmod only.
		return
	}

	fw.send(ctx, ChangeEvent{Type: eventType, Path: event.Name, ModTime: modTime, Size: size})
}

// queueDirectoryContents reports the files of a directory that appeared
// after its parent was already watched; fsnotify raises no events for them.
func (fw *FileWatcher) queueDirectoryContents(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if fw.accept(path) {
			fw.send(ctx, ChangeEvent{Type: EventTypeCreated, Path: path})
		}
		return nil
	})
}

func (fw *FileWatcher) accept(path string) bool {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) send(ctx context.Context, event ChangeEvent) {
	select {
	case fw.debouncer.events <- event:
	default:
		fw.logger.Warn(ctx, nil, "Watcher queue full, dropping event", "path", event.Path)
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(ctx, events); err != nil {
					fw.logger.Error(ctx, err, "File watcher handler error", "events", len(events))
				}
			}
		}
	}
}

// Debouncer implementation
func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.flush()
	})
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Deduplicate events by path, last event wins
	eventMap := make(map[string]ChangeEvent)
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	default:
		// Channel full, skip
	}

	d.pending = d.pending[:0]
}

// Common file filters

// NoHiddenFilter rejects dot files and editor swap files. Hidden
// directories are never added to the watch list.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~") && !strings.HasSuffix(base, ".swp")
}

// NoNodeModulesFilter rejects files below a node_modules directory.
func NoNodeModulesFilter(path string) bool {
	return !strings.Contains(filepath.ToSlash(path), "/node_modules/")
}

// GlobFilter accepts paths, relative to root, matching any pattern.
func GlobFilter(root string, patterns ...string) FileFilter {
	return func(path string) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return false
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return true
			}
		}
		return false
	}
}
