package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// Watcher reloads a Store from a YAML file whenever fsnotify reports the
// file changed, replacing the teacher's control.RegisterReloadHook /
// control.TriggerHotReload pair (which only fanned out a manually
// triggered signal) with an fsnotify watch that fires on its own.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	store   *Store
	log     hclog.Logger
	done    chan struct{}
}

// WatchFile starts watching path for writes and creations, reloading store
// from it on every such event; other events (e.g. rename, remove) are
// ignored. Call Close to stop.
func WatchFile(path string, store *Store, log hclog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	w := &Watcher{watcher: fw, path: path, store: store, log: log, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			next, err := Load(w.path)
			if err != nil {
				w.log.Error("config reload failed, keeping previous flags", "path", w.path, "err", err)
				continue
			}
			if err := w.store.Set(next); err != nil {
				w.log.Error("config reload rejected by validation", "path", w.path, "err", err)
				continue
			}
			w.log.Info("config reloaded", "path", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("config watcher error", "err", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
