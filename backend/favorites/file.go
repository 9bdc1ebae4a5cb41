package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

var _ Store = (*FileStore)(nil)

type favoritesFile struct {
	Version   int                           `json:"version"`
	Favorites []mediaprovider.PlaylistEntry `json:"favorites"`
}

// FileStore persists favorites to a JSON file.
type FileStore struct {
	fs   afero.Fs
	path string

	mu       sync.Mutex
	entries  map[string]mediaprovider.PlaylistEntry
	watchers watchers
}

// OpenFileStore loads the favorites file at path, if it exists.
func OpenFileStore(fs afero.Fs, path string) (*FileStore, error) {
	f := &FileStore{fs: fs, path: path, entries: make(map[string]mediaprovider.PlaylistEntry)}
	entries, err := f.read()
	if err != nil {
		return nil, err
	}
	f.entries = entries
	return f, nil
}

func (f *FileStore) Watch(ctx context.Context, id string, onChange func(bool)) func() {
	w, cancel := f.watchers.add(ctx, id, onChange)
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[id]
	w.deliver(ok)
	return cancel
}

func (f *FileStore) Add(_ context.Context, entry mediaprovider.PlaylistEntry) error {
	f.mu.Lock()
	f.entries[entry.ID] = entry
	err := f.write()
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.watchers.notify(entry.ID, true)
	return nil
}

func (f *FileStore) Remove(_ context.Context, entry mediaprovider.PlaylistEntry) error {
	f.mu.Lock()
	if _, ok := f.entries[entry.ID]; !ok {
		f.mu.Unlock()
		return ErrNotFound
	}
	delete(f.entries, entry.ID)
	err := f.write()
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.watchers.notify(entry.ID, false)
	return nil
}

// Reload re-reads the file and notifies watchers of any changed status.
func (f *FileStore) Reload() error {
	entries, err := f.read()
	if err != nil {
		return err
	}
	f.mu.Lock()
	old := f.entries
	f.entries = entries
	f.mu.Unlock()

	for _, id := range f.watchers.ids() {
		_, was := old[id]
		_, is := entries[id]
		if was != is {
			f.watchers.notify(id, is)
		}
	}
	return nil
}

// WatchFile reloads the store whenever the file is modified by another
// process, until ctx is done. The store must be backed by the OS filesystem.
func (f *FileStore) WatchFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(f.path) ||
					event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := f.Reload(); err != nil {
					log.WithError(err).Warn("failed to reload favorites")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("favorites file watcher error")
			}
		}
	}()
	return nil
}

func (f *FileStore) read() (map[string]mediaprovider.PlaylistEntry, error) {
	b, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]mediaprovider.PlaylistEntry), nil
	} else if err != nil {
		return nil, fmt.Errorf("read favorites: %w", err)
	}
	var ff favoritesFile
	if err := json.Unmarshal(b, &ff); err != nil {
		return nil, fmt.Errorf("parse favorites: %w", err)
	}
	return lo.SliceToMap(ff.Favorites, func(e mediaprovider.PlaylistEntry) (string, mediaprovider.PlaylistEntry) {
		return e.ID, e
	}), nil
}

// must be called with f.mu held
func (f *FileStore) write() error {
	ff := favoritesFile{Version: 1, Favorites: lo.Values(f.entries)}
	b, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, b, 0644); err != nil {
		return err
	}
	return f.fs.Rename(tmp, f.path)
}
