package player

import (
	"context"
	"errors"

	"github.com/samber/mo"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

var ErrNotBound = errors.New("playback engine not bound")

// The transport state of a playback engine (Idle, Playing, or Paused).
type TransportState int

const (
	Idle TransportState = iota
	Playing
	Paused
)

func (s TransportState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// The current status of the engine.
type Status struct {
	State      TransportState
	PositionMs int64
	DurationMs int64
	// Index of the current item in the loaded playlist, or -1.
	Index int
}

// Engine is the boundary to an out-of-process playback engine.
// Implementations must be safe to call from a single goroutine only;
// notifications may be invoked from any goroutine.
type Engine interface {
	// LoadPlaylist replaces the engine's queue, prepares item startIndex
	// and begins playback.
	LoadPlaylist(items []mediaprovider.PlaylistEntry, startIndex int) error
	// Play begins or resumes playback. From Idle, the current item
	// is re-prepared from its default position.
	Play() error
	Pause() error
	// Stop halts playback and discards the buffered position,
	// keeping the queue.
	Stop() error
	SeekTo(ms int64) error
	SkipNext() error
	SkipPrevious() error
	SkipToIndex(idx int) error

	Status() Status
	CurrentItem() mo.Option[mediaprovider.PlaylistEntry]
	// Live playback position, read directly from the engine.
	Position() int64

	Close()

	// Event API
	OnTransportChanged(func())
	OnCurrentItemChanged(func())
	OnError(func(message string))
}

// Binder creates and connects to an engine. Binding may take a while
// (eg. while the engine process starts) and may fail.
type Binder func(ctx context.Context) (Engine, error)

type EngineCallbackImpl struct {
	onTransportChanged   func()
	onCurrentItemChanged func()
	onError              func(string)
}

// Sets a callback which is invoked when the engine's transport state changes.
func (e *EngineCallbackImpl) OnTransportChanged(cb func()) {
	e.onTransportChanged = cb
}

// Sets a callback which is invoked when the current item changes,
// including when the engine's queue is replaced.
func (e *EngineCallbackImpl) OnCurrentItemChanged(cb func()) {
	e.onCurrentItemChanged = cb
}

// Sets a callback which is invoked with a human readable message
// when playback of an item fails.
func (e *EngineCallbackImpl) OnError(cb func(string)) {
	e.onError = cb
}

func (e *EngineCallbackImpl) InvokeOnTransportChanged() {
	if e.onTransportChanged != nil {
		e.onTransportChanged()
	}
}

func (e *EngineCallbackImpl) InvokeOnCurrentItemChanged() {
	if e.onCurrentItemChanged != nil {
		e.onCurrentItemChanged()
	}
}

func (e *EngineCallbackImpl) InvokeOnError(msg string) {
	if e.onError != nil {
		e.onError(msg)
	}
}
