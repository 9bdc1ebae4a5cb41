// Package favorites provides stores of the user's favorite tracks.
package favorites

import (
	"context"
	"errors"
	"sync"

	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

var ErrNotFound = errors.New("favorite not found")

// Store is a persistent set of favorite entries.
type Store interface {
	// Watch calls onChange with whether id is a favorite, once with the
	// current status and again on every change, until the returned
	// function is called or ctx is done. onChange may be invoked from
	// any goroutine but never concurrently for one watch.
	Watch(ctx context.Context, id string, onChange func(bool)) (cancel func())
	Add(ctx context.Context, entry mediaprovider.PlaylistEntry) error
	Remove(ctx context.Context, entry mediaprovider.PlaylistEntry) error
}

type watch struct {
	id       string
	mu       sync.Mutex
	onChange func(bool)
	last     bool
	sent     bool
	stopped  bool
}

func (w *watch) deliver(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || (w.sent && w.last == v) {
		return
	}
	w.sent = true
	w.last = v
	w.onChange(v)
}

// watchers tracks the active watches of a store, keyed by id.
type watchers struct {
	mu      sync.Mutex
	nextKey int
	byID    map[string]map[int]*watch
}

func (ws *watchers) add(ctx context.Context, id string, onChange func(bool)) (*watch, func()) {
	w := &watch{id: id, onChange: onChange}
	ws.mu.Lock()
	if ws.byID == nil {
		ws.byID = make(map[string]map[int]*watch)
	}
	key := ws.nextKey
	ws.nextKey++
	if ws.byID[id] == nil {
		ws.byID[id] = make(map[int]*watch)
	}
	ws.byID[id][key] = w
	ws.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			w.stopped = true
			w.mu.Unlock()
			ws.mu.Lock()
			delete(ws.byID[id], key)
			if len(ws.byID[id]) == 0 {
				delete(ws.byID, id)
			}
			ws.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return w, func() {
		stop()
		cancel()
	}
}

func (ws *watchers) notify(id string, v bool) {
	ws.mu.Lock()
	list := make([]*watch, 0, len(ws.byID[id]))
	for _, w := range ws.byID[id] {
		list = append(list, w)
	}
	ws.mu.Unlock()
	for _, w := range list {
		w.deliver(v)
	}
}

// ids returns the ids with at least one active watch.
func (ws *watchers) ids() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ids := make([]string, 0, len(ws.byID))
	for id := range ws.byID {
		ids = append(ids, id)
	}
	return ids
}
