// Package watch re-runs an action when the sample directory or the corpus
// store changes on disk.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 2 * time.Second

// Options configures a Watcher.
type Options struct {
	// Dirs are watched recursively. Directories created later are added.
	Dirs []string
	// Files are watched through their parent directory so that atomic
	// replacement (write to temp, rename) is seen.
	Files []string
	// Ignore lists path prefixes whose events are dropped, such as a
	// report directory inside the sample tree.
	Ignore   []string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher coalesces file events into action runs.
type Watcher struct {
	opts  Options
	fsw   *fsnotify.Watcher
	files map[string]struct{}
	dirs  []string
	log   *slog.Logger
}

// New creates a watcher and registers every directory it needs.
func New(opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{opts: opts, fsw: fsw, files: make(map[string]struct{}), log: log}

	for _, dir := range opts.Dirs {
		dir = filepath.Clean(dir)
		w.dirs = append(w.dirs, dir)
		if err := w.addRecursive(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	for _, f := range opts.Files {
		f = filepath.Clean(f)
		w.files[f] = struct{}{}
		if err := fsw.Add(filepath.Dir(f)); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", f, err)
		}
	}
	return w, nil
}

// Close releases the underlying watches.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run calls fn once, then again after every burst of relevant changes has
// been quiet for the debounce interval. Errors from fn are logged and the
// watch continues. Run returns when ctx is done.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context) error) error {
	w.invoke(ctx, fn, "initial")

	var fire <-chan time.Time
	var timer *time.Timer
	pending := 0
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			pending++
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.opts.Debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch error", "error", err)

		case <-fire:
			fire = nil
			w.log.Info("re-running after changes", "events", pending)
			pending = 0
			w.invoke(ctx, fn, "change")
		}
	}
}

func (w *Watcher) invoke(ctx context.Context, fn func(context.Context) error, trigger string) {
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		w.log.Error("run failed", "trigger", trigger, "error", err)
	}
}

// relevant filters events down to sample files and watched store files.
// New directories under a watched tree are registered on the way.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	path := filepath.Clean(ev.Name)
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	for _, prefix := range w.opts.Ignore {
		if within(path, filepath.Clean(prefix)) {
			return false
		}
	}
	if _, ok := w.files[path]; ok {
		return true
	}
	for _, dir := range w.dirs {
		if !within(path, dir) {
			continue
		}
		if strings.HasPrefix(filepath.Base(path), ".") {
			return false
		}
		if ev.Has(fsnotify.Create) {
			if fi, err := os.Stat(path); err == nil && fi.IsDir() {
				if err := w.addRecursive(path); err != nil {
					w.log.Warn("watch new directory", "path", path, "error", err)
				}
			}
		}
		return true
	}
	return false
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.log.Debug("watching directory", "path", path)
		return nil
	})
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
