package backend

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/require"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
	"github.com/supersonic-app/nowplaying/backend/player"
)

// fakeEngine is an in-process player.Engine that records the calls made
// on it and behaves like a simple queue player.
type fakeEngine struct {
	player.EngineCallbackImpl

	mu       sync.Mutex
	calls    []string
	items    []mediaprovider.PlaylistEntry
	index    int
	state    player.TransportState
	position int64
	duration int64
	closed   bool
}

var _ player.Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{index: -1}
}

func (f *fakeEngine) binder() player.Binder {
	return func(context.Context) (player.Engine, error) { return f, nil }
}

func (f *fakeEngine) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) CountCalls(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name || (len(c) > len(name) && c[:len(name)+1] == name+"(") {
			n++
		}
	}
	return n
}

func (f *fakeEngine) LoadPlaylist(items []mediaprovider.PlaylistEntry, startIndex int) error {
	f.mu.Lock()
	f.record("LoadPlaylist(%d,%d)", len(items), startIndex)
	f.items = append([]mediaprovider.PlaylistEntry(nil), items...)
	f.index = startIndex
	f.state = player.Playing
	f.position = 0
	f.duration = items[startIndex].DurationMs
	f.mu.Unlock()
	f.InvokeOnCurrentItemChanged()
	f.InvokeOnTransportChanged()
	return nil
}

func (f *fakeEngine) Play() error {
	return f.setState("Play", player.Playing)
}

func (f *fakeEngine) Pause() error {
	return f.setState("Pause", player.Paused)
}

func (f *fakeEngine) Stop() error {
	return f.setState("Stop", player.Idle)
}

func (f *fakeEngine) setState(call string, st player.TransportState) error {
	f.mu.Lock()
	f.record("%s", call)
	f.state = st
	if st == player.Idle {
		f.position = 0
	}
	f.mu.Unlock()
	f.InvokeOnTransportChanged()
	return nil
}

func (f *fakeEngine) SeekTo(ms int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SeekTo(%d)", ms)
	f.position = ms
	return nil
}

func (f *fakeEngine) SkipNext() error {
	f.mu.Lock()
	f.record("SkipNext")
	f.mu.Unlock()
	return f.skipTo(f.currentIndex() + 1)
}

func (f *fakeEngine) SkipPrevious() error {
	f.mu.Lock()
	f.record("SkipPrevious")
	f.mu.Unlock()
	return f.skipTo(f.currentIndex() - 1)
}

func (f *fakeEngine) SkipToIndex(idx int) error {
	f.mu.Lock()
	f.record("SkipToIndex(%d)", idx)
	f.mu.Unlock()
	return f.skipTo(idx)
}

func (f *fakeEngine) skipTo(idx int) error {
	f.mu.Lock()
	if idx < 0 || idx >= len(f.items) {
		f.mu.Unlock()
		return fmt.Errorf("index %d out of range", idx)
	}
	f.index = idx
	f.position = 0
	f.duration = f.items[idx].DurationMs
	f.mu.Unlock()
	f.InvokeOnCurrentItemChanged()
	return nil
}

func (f *fakeEngine) currentIndex() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

func (f *fakeEngine) Status() player.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return player.Status{
		State:      f.state,
		PositionMs: f.position,
		DurationMs: f.duration,
		Index:      f.index,
	}
}

func (f *fakeEngine) CurrentItem() mo.Option[mediaprovider.PlaylistEntry] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index < 0 || f.index >= len(f.items) {
		return mo.None[mediaprovider.PlaylistEntry]()
	}
	return mo.Some(f.items[f.index])
}

func (f *fakeEngine) Position() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeEngine) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// advance simulates playback progress without notifying.
func (f *fakeEngine) advance(ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position += ms
}

// fail simulates the engine reporting a playback error.
func (f *fakeEngine) fail(msg string) {
	f.InvokeOnError(msg)
}

func newBoundConnection(t *testing.T, eng *fakeEngine) *PlaybackConnection {
	t.Helper()
	conn := NewPlaybackConnection(context.Background(), eng.binder())
	t.Cleanup(conn.Close)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, conn.WaitBound(ctx))
	return conn
}

func flushConn(t *testing.T, conn *PlaybackConnection) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// engine callbacks enqueue follow-up syncs behind the first barrier
	for i := 0; i < 3; i++ {
		conn.flush(ctx)
	}
	require.NoError(t, ctx.Err(), "connection did not flush")
}
