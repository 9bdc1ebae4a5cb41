package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/mo"
	log "github.com/sirupsen/logrus"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
	"github.com/supersonic-app/nowplaying/backend/player"
	"github.com/supersonic-app/nowplaying/backend/util"
)

// PlaybackConnection owns the binding to the playback engine and exposes
// its condition as independently updating observable values.
// All access to the engine happens on a single worker goroutine, fed by
// a CommandQueue, so no caller ever blocks on the engine.
type PlaybackConnection struct {
	Transport   *util.Observable[player.TransportState]
	CurrentItem *util.Observable[mo.Option[mediaprovider.PlaylistEntry]]
	PositionMs  *util.Observable[int64]
	DurationMs  *util.Observable[int64]
	// Set when playback fails. Must be cleared with ClearError once handled.
	Error *util.Observable[mo.Option[string]]

	cmdQueue *CommandQueue
	bound    chan struct{}
	done     chan struct{}

	// owned by the worker goroutine once bound is closed
	engine player.Engine

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPlaybackConnection starts binding to the engine in the background.
// If binding fails, the connection stays Idle with no current item.
func NewPlaybackConnection(ctx context.Context, bind player.Binder) *PlaybackConnection {
	c := &PlaybackConnection{
		Transport:   util.NewObservable(player.Idle),
		CurrentItem: util.NewObservableFunc(mo.None[mediaprovider.PlaylistEntry](), optionEqual[mediaprovider.PlaylistEntry]),
		PositionMs:  util.NewObservable[int64](0),
		DurationMs:  util.NewObservable[int64](0),
		Error:       util.NewObservableFunc(mo.None[string](), optionEqual[string]),
		cmdQueue:    NewCommandQueue(),
		bound:       make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.run(bind)
	return c
}

func (c *PlaybackConnection) run(bind player.Binder) {
	defer close(c.done)
	eng, err := bind(c.ctx)
	if err != nil {
		log.WithError(err).Warn("failed to bind playback engine")
		eng = nil
	} else {
		eng.OnTransportChanged(c.cmdQueue.SyncState)
		eng.OnCurrentItemChanged(c.cmdQueue.SyncState)
		eng.OnError(func(msg string) {
			c.Error.Set(mo.Some(fmt.Sprintf("Playback error: %s", msg)))
		})
		c.engine = eng
		log.Debug("playback engine bound")
	}
	close(c.bound)
	if eng != nil {
		c.syncState()
	}

	for cmd := range c.cmdQueue.C() {
		c.handleCommand(cmd)
	}
	if eng != nil {
		eng.Close()
	}
}

func (c *PlaybackConnection) handleCommand(cmd PlaybackCommand) {
	if cmd.Type == cmdBarrier {
		close(cmd.Arg.(chan struct{}))
		return
	}
	eng := c.engine
	if eng == nil {
		log.Debugf("dropping playback command %d: %v", cmd.Type, player.ErrNotBound)
		return
	}

	var err error
	switch cmd.Type {
	case cmdLoadPlaylist:
		err = eng.LoadPlaylist(cmd.Arg.([]mediaprovider.PlaylistEntry), cmd.Arg2.(int))
	case cmdTogglePlayPause:
		err = c.togglePlayPause(eng)
	case cmdPause:
		if eng.Status().State == player.Playing {
			err = c.togglePlayPause(eng)
		}
	case cmdSeekTo:
		err = eng.SeekTo(cmd.Arg.(int64))
	case cmdSkipToIndex:
		wasPlaying := eng.Status().State == player.Playing
		if err = eng.SkipToIndex(cmd.Arg.(int)); err == nil && !wasPlaying {
			err = eng.Play()
		}
	case cmdSkipNext:
		err = eng.SkipNext()
	case cmdSkipPrevious:
		err = eng.SkipPrevious()
	case cmdSyncState:
		c.syncState()
	case cmdSyncPosition:
		c.PositionMs.Set(eng.Position())
	}
	if err != nil {
		log.WithError(err).Warnf("playback command %d failed", cmd.Type)
	}
}

// Pausing a live stream is a hard stop, since it has no meaningful
// paused position; resuming re-prepares it from the live edge.
func (c *PlaybackConnection) togglePlayPause(eng player.Engine) error {
	st := eng.Status()
	isStream := false
	if item, ok := eng.CurrentItem().Get(); ok {
		isStream = item.IsStream()
	}
	switch {
	case st.State == player.Playing && isStream:
		return eng.Stop()
	case st.State == player.Playing:
		return eng.Pause()
	case st.State == player.Paused && isStream:
		if err := eng.Stop(); err != nil {
			return err
		}
	}
	return eng.Play()
}

func (c *PlaybackConnection) syncState() {
	st := c.engine.Status()
	c.CurrentItem.Set(c.engine.CurrentItem())
	c.DurationMs.Set(max(st.DurationMs, 0))
	c.PositionMs.Set(st.PositionMs)
	c.Transport.Set(st.State)
}

// LoadPlaylist replaces the engine's queue and starts playing items[startIndex].
func (c *PlaybackConnection) LoadPlaylist(items []mediaprovider.PlaylistEntry, startIndex int) {
	c.cmdQueue.LoadPlaylist(append([]mediaprovider.PlaylistEntry(nil), items...), startIndex)
}

func (c *PlaybackConnection) TogglePlayPause() {
	c.cmdQueue.TogglePlayPause()
}

// Pause pauses (or, for a live stream, stops) playback if playing.
func (c *PlaybackConnection) Pause() {
	c.cmdQueue.Pause()
}

// SeekTo seeks the engine and publishes the requested position immediately.
func (c *PlaybackConnection) SeekTo(ms int64) {
	c.PositionMs.Set(ms)
	c.cmdQueue.SeekTo(ms)
}

// SkipToIndex skips to the item at idx, resuming playback if paused.
func (c *PlaybackConnection) SkipToIndex(idx int) {
	c.cmdQueue.SkipToIndex(idx)
}

func (c *PlaybackConnection) SkipNext() {
	c.cmdQueue.SkipNext()
}

func (c *PlaybackConnection) SkipPrevious() {
	c.cmdQueue.SkipPrevious()
}

// UpdatePosition requests a read of the engine's live position
// into PositionMs.
func (c *PlaybackConnection) UpdatePosition() {
	c.cmdQueue.SyncPosition()
}

func (c *PlaybackConnection) ClearError() {
	c.Error.Set(mo.None[string]())
}

// WaitBound blocks until binding has completed (successfully or not)
// and reports whether an engine is bound.
func (c *PlaybackConnection) WaitBound(ctx context.Context) bool {
	select {
	case <-c.bound:
		return c.engine != nil
	case <-ctx.Done():
		return false
	}
}

// Close releases the engine. Pending commands are discarded.
func (c *PlaybackConnection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.cmdQueue.Close()
		<-c.done
	})
}

// waits until all previously issued commands have been handled
func (c *PlaybackConnection) flush(ctx context.Context) {
	select {
	case <-c.cmdQueue.Barrier():
	case <-ctx.Done():
	}
}

func optionEqual[T comparable](a, b mo.Option[T]) bool {
	av, aok := a.Get()
	bv, bok := b.Get()
	return aok == bok && av == bv
}
