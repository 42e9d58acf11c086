// Package hotreload watches an asset directory and reports settled batches of
// changed files.
package hotreload

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher coalesces bursts of file events. A batch is delivered once no
// event has arrived for the debounce delay. Only one batch is buffered; a
// batch arriving while one is unread is merged into it.
type Watcher struct {
	watcher *fsnotify.Watcher
	root    string
	log     zerolog.Logger

	debounced func(func())
	changes   chan []string

	mu      sync.Mutex
	pending map[string]struct{}
}

// New watches root and every directory below it.
func New(root string, delay time.Duration, log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:   fw,
		root:      filepath.Clean(root),
		log:       log,
		debounced: debounce.New(delay),
		changes:   make(chan []string, 1),
		pending:   make(map[string]struct{}),
	}
	if err := w.addTree(w.root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Changes delivers batches of changed paths, relative to the root with
// forward slashes, sorted.
func (w *Watcher) Changes() <-chan []string {
	return w.changes
}

// Run consumes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("asset watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn().Err(err).Str("dir", event.Name).Msg("cannot watch new directory")
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	w.mu.Unlock()
	w.debounced(w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return
	}

	// Fold an unread batch into this one.
	select {
	case prev := <-w.changes:
		for _, p := range prev {
			w.pending[p] = struct{}{}
		}
	default:
	}

	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	sort.Strings(batch)
	w.pending = make(map[string]struct{})

	w.changes <- batch
	w.log.Debug().Strs("files", batch).Msg("assets changed")
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
