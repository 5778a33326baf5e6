package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/atinyakov/GophFill/internal/models"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watched caches the entries of a Store and drops the cache whenever fsnotify reports a
// change below the root, so repeated searches do not re-walk an unchanged store.
type Watched struct {
	store *Store
	fw    *fsnotify.Watcher
	log   *zap.Logger

	mu      sync.Mutex
	entries []models.PasswordEntry
	valid   bool
	version uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatched starts watching every non-hidden directory of store.
func NewWatched(store *Store, log *zap.Logger) (*Watched, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watched{
		store: store,
		fw:    fw,
		log:   log,
		done:  make(chan struct{}),
	}
	if err := w.addTree(store.Root()); err != nil {
		fw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// Root returns the absolute store root.
func (w *Watched) Root() string { return w.store.Root() }

// Lookup delegates to the underlying Store.
func (w *Watched) Lookup(relPath string) (models.PasswordEntry, bool) {
	return w.store.Lookup(relPath)
}

// Entries returns the cached entries, walking the store when the cache is stale.
func (w *Watched) Entries(ctx context.Context) ([]models.PasswordEntry, error) {
	w.mu.Lock()
	if w.valid {
		out := append([]models.PasswordEntry(nil), w.entries...)
		w.mu.Unlock()
		return out, nil
	}
	version := w.version
	w.mu.Unlock()

	entries, err := w.store.Entries(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	// A change during the walk leaves the cache invalid.
	if w.version == version {
		w.entries = entries
		w.valid = true
	}
	w.mu.Unlock()
	return append([]models.PasswordEntry(nil), entries...), nil
}

// Invalidate drops the cached entries.
func (w *Watched) Invalidate() {
	w.mu.Lock()
	w.valid = false
	w.entries = nil
	w.version++
	w.mu.Unlock()
}

// Close stops watching.
func (w *Watched) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}

func (w *Watched) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if isHidden(filepath.Base(event.Name)) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			w.log.Debug("password store changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			w.Invalidate()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Error("password store watcher error", zap.Error(err))
			w.Invalidate()
		}
	}
}

func (w *Watched) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.fw.Add(p)
	})
}
