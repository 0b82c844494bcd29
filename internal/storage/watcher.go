package storage

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/reclass-go/reclass/log"
)

// Watcher watches a storage tree for on-disk changes and invalidates
// a MemcacheProxy's cached entities in response, so a long-running
// process (e.g. an API server embedding the compiler) observes edits
// without restarting. Grounded on the fsnotify wiring pattern used for
// live-reload elsewhere in the example corpus.
type Watcher struct {
	fsw   *fsnotify.Watcher
	proxy *MemcacheProxy
	done  chan struct{}
}

// WatchTree starts watching every directory under root (recursively)
// and invalidating proxy's caches whenever a write, create, remove, or
// rename event is observed.
func WatchTree(root string, proxy *MemcacheProxy) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs, err := walkDirs(root)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	w := &Watcher{fsw: fsw, proxy: proxy, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func walkDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dirs, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				log.DEBUG("storage tree changed (%s), invalidating caches", event.Name)
				w.proxy.InvalidateAll()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.WARN("storage watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
