// Package watch turns writes to the voice config files into
// file.watcher.updated events for hosts that do not send their own.
package watch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"yuzu/voicebridge/internal/router"
	"yuzu/voicebridge/internal/types"
)

const defaultDebounce = 150 * time.Millisecond

type Handler interface {
	HandleEvent(ctx context.Context, evt types.Event)
}

// Watcher watches the parent directories of the config files. A parent
// that does not exist yet is covered by watching its nearest existing
// ancestor until it is created, so a config file created later is still
// picked up.
type Watcher struct {
	paths    map[string]bool
	dirs     map[string]bool
	handler  Handler
	log      zerolog.Logger
	Debounce time.Duration

	// watched is only touched by Start and then the event loop.
	watched map[string]bool

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(paths []string, h Handler, log zerolog.Logger) *Watcher {
	w := &Watcher{
		paths:    make(map[string]bool),
		dirs:     make(map[string]bool),
		handler:  h,
		log:      log.With().Str("component", "watch").Logger(),
		Debounce: defaultDebounce,
		watched:  make(map[string]bool),
		timers:   make(map[string]*time.Timer),
	}
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			abs = filepath.Clean(abs)
			w.paths[abs] = true
			w.dirs[filepath.Dir(abs)] = true
		}
	}
	return w
}

// Start adds the directory watches and processes events until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for d := range w.dirs {
		if !w.watchToward(fw, d) {
			w.log.Debug().Str("dir", d).Msg("config dir missing, watching ancestor")
		}
	}
	w.log.Info().Int("dirs", len(w.watched)).Msg("watching voice config")
	go w.loop(ctx, fw)
	return nil
}

// watchToward watches dir, or its nearest existing ancestor when dir does
// not exist. It reports whether dir itself is watched.
func (w *Watcher) watchToward(fw *fsnotify.Watcher, dir string) bool {
	d := dir
	for {
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			break
		}
		parent := filepath.Dir(d)
		if parent == d {
			return false
		}
		d = parent
	}
	if !w.watched[d] {
		if err := fw.Add(d); err != nil {
			w.log.Warn().Err(err).Str("dir", d).Msg("watch failed")
			return false
		}
		w.watched[d] = true
	}
	return d == dir
}

// extend moves ancestor watches closer to the config dirs. A config dir
// reached this way may already hold the file, which is reported at once.
func (w *Watcher) extend(ctx context.Context, fw *fsnotify.Watcher) {
	for d := range w.dirs {
		if w.watched[d] || !w.watchToward(fw, d) {
			continue
		}
		for p := range w.paths {
			if filepath.Dir(p) != d {
				continue
			}
			if _, err := os.Stat(p); err == nil {
				w.schedule(ctx, p)
			}
		}
	}
}

// onConfigRoute reports whether name is a config dir or one of its
// ancestors.
func (w *Watcher) onConfigRoute(name string) bool {
	for d := range w.dirs {
		if d == name || strings.HasPrefix(d, name+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()
	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			name := filepath.Clean(ev.Name)
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && w.watched[name] {
				delete(w.watched, name)
				w.extend(ctx, fw)
			}
			if ev.Op&fsnotify.Create != 0 && w.onConfigRoute(name) {
				w.extend(ctx, fw)
			}
			if !w.paths[name] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx, name)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// schedule coalesces bursts of writes into one event per path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(w.Debounce, func() {
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		props, _ := json.Marshal(map[string]string{"file": path, "event": "change"})
		w.handler.HandleEvent(ctx, types.Event{Type: router.EventFileWatcher, Properties: props})
	})
	w.timers[path] = t
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
}
