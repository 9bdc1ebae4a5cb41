package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supersonic-app/nowplaying/backend/favorites"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

const (
	eventually = 2 * time.Second
	pollEvery  = 5 * time.Millisecond
)

type waveformFunc func(ctx context.Context, entry mediaprovider.PlaylistEntry) ([]float32, error)

func (f waveformFunc) Generate(ctx context.Context, entry mediaprovider.PlaylistEntry) ([]float32, error) {
	return f(ctx, entry)
}

func newTestStore(t *testing.T, eng *fakeEngine, favs favorites.Store, wf WaveformGenerator) (*PlayerStateStore, *PlaybackConnection) {
	t.Helper()
	conn := newBoundConnection(t, eng)
	s := NewPlayerStateStore(context.Background(), conn, favs, wf, StoreOptions{PositionPollInterval: 10 * time.Millisecond})
	t.Cleanup(s.Close)
	return s, conn
}

func nextEvent(t *testing.T, s *PlayerStateStore) PlayerEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	e, err := s.Events().Next(ctx)
	require.NoError(t, err, "expected an event")
	return e
}

func waitForCurrent(t *testing.T, s *PlayerStateStore, id string) UiState {
	t.Helper()
	require.Eventually(t, func() bool { return s.State().CurrentID() == id }, eventually, pollEvery)
	return s.State()
}

func TestPlayerStateStore_InitialState(t *testing.T) {
	s, _ := newTestStore(t, newFakeEngine(), nil, nil)
	s.sync()
	st := s.State()
	assert.Equal(t, notPlayingTitle, st.Title)
	assert.False(t, st.IsPlayerVisible)
	assert.False(t, st.IsFavorite)
	assert.True(t, st.CurrentMediaID.IsAbsent())
	assert.Empty(t, st.Playlist)
	assert.Empty(t, st.Waveform)
}

func TestPlayerStateStore_PlayFromIndex(t *testing.T) {
	s, _ := newTestStore(t, newFakeEngine(), nil, nil)
	list := testEntries("A", "B", "C")
	s.Play(list, 1)

	require.Eventually(t, func() bool {
		st := s.State()
		return st.CurrentID() == "B" && st.IsPlaying
	}, eventually, pollEvery)

	st := s.State()
	require.Len(t, st.Playlist, 3)
	assert.False(t, st.Playlist[0].IsCurrent)
	assert.True(t, st.Playlist[1].IsCurrent)
	assert.True(t, st.Playlist[1].IsPlaying)
	assert.False(t, st.Playlist[2].IsCurrent)
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, "Title B", st.Title)
	assert.Equal(t, "Artist B", st.Artist)
	assert.Equal(t, "http://music.example.com/B.jpg", st.ArtworkURI)
	assert.True(t, st.IsPlayerVisible)
}

func TestPlayerStateStore_PlayReplacesPlaylistImmediately(t *testing.T) {
	s, _ := newTestStore(t, newFakeEngine(), nil, nil)
	s.Play(testEntries("A", "B"), 0)
	waitForCurrent(t, s, "A")

	// published before the engine has confirmed the load
	s.Play(testEntries("X", "Y", "Z"), 2)
	s.sync()
	st := s.State()
	require.Len(t, st.Playlist, 3)
	assert.Equal(t, "X", st.Playlist[0].ID)
}

func TestPlayerStateStore_PlaySameIDToggles(t *testing.T) {
	eng := newFakeEngine()
	s, conn := newTestStore(t, eng, nil, nil)
	list := testEntries("A", "B", "C")
	s.Play(list, 1)
	waitForCurrent(t, s, "B")

	s.Play(list, 1)
	s.sync()
	flushConn(t, conn)

	require.Eventually(t, func() bool { return !s.State().IsPlaying }, eventually, pollEvery)
	assert.Equal(t, 1, eng.CountCalls("LoadPlaylist"))
	assert.Equal(t, 1, eng.CountCalls("Pause"))
	assert.Equal(t, RequestExpand{}, nextEvent(t, s))
}

func TestPlayerStateStore_PlaySameIDKeepsQueuedPlaylist(t *testing.T) {
	eng := newFakeEngine()
	s, conn := newTestStore(t, eng, nil, nil)
	s.Play(testEntries("A", "B", "C"), 0)
	waitForCurrent(t, s, "A")

	s.Play(testEntries("X", "Y", "A"), 2)
	s.sync()
	flushConn(t, conn)

	st := s.State()
	ids := make([]string, len(st.Playlist))
	for i, item := range st.Playlist {
		ids[i] = item.ID
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
	assert.Equal(t, 0, st.CurrentIndex)
	assert.Equal(t, 1, eng.CountCalls("LoadPlaylist"))
	assert.Equal(t, RequestExpand{}, nextEvent(t, s))

	// the displayed playlist is the one the engine plays from
	s.SkipTo(1)
	waitForCurrent(t, s, "B")
	assert.Equal(t, "B", eng.CurrentItem().MustGet().ID)
}

func TestPlayerStateStore_PlayOutOfRangeIgnored(t *testing.T) {
	eng := newFakeEngine()
	s, conn := newTestStore(t, eng, nil, nil)
	s.Play(testEntries("A"), 3)
	s.Play(testEntries("A"), -1)
	s.sync()
	flushConn(t, conn)
	assert.Empty(t, eng.Calls())
	assert.Empty(t, s.State().Playlist)
}

func TestPlayerStateStore_SkipToOutOfRange(t *testing.T) {
	eng := newFakeEngine()
	s, conn := newTestStore(t, eng, nil, nil)
	s.Play(testEntries("A", "B", "C"), 0)
	waitForCurrent(t, s, "A")
	flushConn(t, conn)
	s.sync()

	before := s.State()
	calls := eng.Calls()
	s.SkipTo(3)
	s.SkipTo(-1)
	s.sync()
	flushConn(t, conn)
	s.sync()

	assert.Equal(t, calls, eng.Calls())
	assert.True(t, before.Equal(s.State()))

	s.SkipTo(2)
	waitForCurrent(t, s, "C")
	assert.Equal(t, 1, eng.CountCalls("SkipToIndex"))
}

func TestPlayerStateStore_CommandsForwarded(t *testing.T) {
	eng := newFakeEngine()
	s, conn := newTestStore(t, eng, nil, nil)
	s.Play(testEntries("A", "B", "C"), 0)
	waitForCurrent(t, s, "A")

	s.SkipNext()
	waitForCurrent(t, s, "B")
	s.SkipPrevious()
	waitForCurrent(t, s, "A")

	s.SeekTo(30_000)
	require.Eventually(t, func() bool { return s.State().PositionMs >= 30_000 }, eventually, pollEvery)

	s.TogglePlayPause()
	flushConn(t, conn)
	require.Eventually(t, func() bool { return !s.State().IsPlaying }, eventually, pollEvery)
}

func TestPlayerStateStore_PollsPositionWhilePlaying(t *testing.T) {
	eng := newFakeEngine()
	s, conn := newTestStore(t, eng, nil, nil)
	s.Play(testEntries("A"), 0)
	waitForCurrent(t, s, "A")

	eng.advance(5_000)
	require.Eventually(t, func() bool { return s.State().PositionMs == 5_000 }, eventually, pollEvery)

	s.TogglePlayPause()
	flushConn(t, conn)
	require.Eventually(t, func() bool { return !s.State().IsPlaying }, eventually, pollEvery)
	s.sync()
	assert.Nil(t, s.cancelPollForTest())
}

func TestPlayerStateStore_NoPollingForStreams(t *testing.T) {
	eng := newFakeEngine()
	s, _ := newTestStore(t, eng, nil, nil)
	station := mediaprovider.RadioStation{ID: "jazz", StreamURL: "http://jazz/live"}
	s.Play([]mediaprovider.PlaylistEntry{station.Entry()}, 0)
	require.Eventually(t, func() bool { return s.State().IsRadioStream && s.State().IsPlaying }, eventually, pollEvery)
	s.sync()
	assert.Nil(t, s.cancelPollForTest())
}

func TestPlayerStateStore_WaveformClearedAndStaleDiscarded(t *testing.T) {
	staleRelease := make(chan struct{})
	staleCancelled := make(chan struct{})
	fresh := []float32{0.5, 1}

	wf := waveformFunc(func(ctx context.Context, e mediaprovider.PlaylistEntry) ([]float32, error) {
		if e.ID == "A" {
			<-ctx.Done()
			close(staleCancelled)
			// ignores cancellation and produces a result anyway
			<-staleRelease
			return []float32{0.9, 0.9}, nil
		}
		return fresh, nil
	})

	s, _ := newTestStore(t, newFakeEngine(), nil, wf)
	s.Play(testEntries("A", "B"), 0)
	st := waitForCurrent(t, s, "A")
	assert.Empty(t, st.Waveform)

	s.SkipNext()
	waitForCurrent(t, s, "B")
	select {
	case <-staleCancelled:
	case <-time.After(eventually):
		t.Fatal("generation for the previous item was not cancelled")
	}
	require.Eventually(t, func() bool { return len(s.State().Waveform) == 2 }, eventually, pollEvery)

	close(staleRelease)
	time.Sleep(20 * time.Millisecond)
	s.sync()
	assert.Equal(t, fresh, s.State().Waveform)
}

func TestPlayerStateStore_NoWaveformForStreams(t *testing.T) {
	called := make(chan string, 4)
	wf := waveformFunc(func(_ context.Context, e mediaprovider.PlaylistEntry) ([]float32, error) {
		called <- e.ID
		return []float32{1}, nil
	})
	s, _ := newTestStore(t, newFakeEngine(), nil, wf)
	station := mediaprovider.RadioStation{ID: "jazz", StreamURL: "http://jazz/live"}
	s.Play([]mediaprovider.PlaylistEntry{station.Entry()}, 0)
	waitForCurrent(t, s, "radio_jazz")
	s.sync()
	assert.Empty(t, called)
	assert.Empty(t, s.State().Waveform)
}

func TestPlayerStateStore_RadioErrorShowsDialog(t *testing.T) {
	eng := newFakeEngine()
	s, conn := newTestStore(t, eng, nil, nil)
	station := mediaprovider.RadioStation{ID: "jazz", StreamURL: "http://jazz/live"}
	s.Play([]mediaprovider.PlaylistEntry{station.Entry()}, 0)
	require.Eventually(t, func() bool { return s.State().IsRadioStream }, eventually, pollEvery)

	eng.fail("stream not found")
	assert.Equal(t, ShowErrorDialog{Title: "Station Unavailable", Text: "Trying next..."}, nextEvent(t, s))
	require.Eventually(t, func() bool { return conn.Error.Get().IsAbsent() }, eventually, pollEvery)

	time.Sleep(20 * time.Millisecond)
	s.sync()
	assert.Zero(t, s.Events().Pending(), "error must be surfaced exactly once")
}

func TestPlayerStateStore_TrackErrorShowsNotice(t *testing.T) {
	eng := newFakeEngine()
	s, conn := newTestStore(t, eng, nil, nil)
	s.Play(testEntries("A"), 0)
	waitForCurrent(t, s, "A")

	eng.fail("codec not supported")
	assert.Equal(t, ShowNotice{Text: "Playback error: codec not supported"}, nextEvent(t, s))
	require.Eventually(t, func() bool { return conn.Error.Get().IsAbsent() }, eventually, pollEvery)
}

func TestPlayerStateStore_FavoriteFollowsCurrentItem(t *testing.T) {
	entries := testEntries("A", "B")
	favs := favorites.NewMemoryStore(entries[1])
	s, _ := newTestStore(t, newFakeEngine(), favs, nil)

	s.sync()
	assert.False(t, s.State().IsFavorite)

	s.Play(entries, 0)
	waitForCurrent(t, s, "A")
	s.sync()
	assert.False(t, s.State().IsFavorite)

	s.SkipNext()
	waitForCurrent(t, s, "B")
	require.Eventually(t, func() bool { return s.State().IsFavorite }, eventually, pollEvery)

	// a change for the previous item does not leak into the current one
	require.NoError(t, favs.Add(context.Background(), entries[0]))
	require.NoError(t, favs.Remove(context.Background(), entries[1]))
	require.Eventually(t, func() bool { return !s.State().IsFavorite }, eventually, pollEvery)
}

func TestPlayerStateStore_ToggleFavorite(t *testing.T) {
	favs := favorites.NewMemoryStore()
	s, _ := newTestStore(t, newFakeEngine(), favs, nil)
	s.Play(testEntries("A"), 0)
	waitForCurrent(t, s, "A")

	s.ToggleFavorite()
	assert.Equal(t, ShowNotice{Text: "Added to favorites"}, nextEvent(t, s))
	require.Eventually(t, func() bool { return s.State().IsFavorite }, eventually, pollEvery)
	require.Len(t, favs.Entries(), 1)
	assert.Equal(t, "Title A", favs.Entries()[0].Title)

	s.ToggleFavorite()
	assert.Equal(t, ShowNotice{Text: "Removed from favorites"}, nextEvent(t, s))
	require.Eventually(t, func() bool { return !s.State().IsFavorite }, eventually, pollEvery)
	assert.Empty(t, favs.Entries())
}

func TestPlayerStateStore_ToggleFavoriteWithoutPlaylistEntry(t *testing.T) {
	favs := favorites.NewMemoryStore()
	s, conn := newTestStore(t, newFakeEngine(), favs, nil)

	// loaded behind the store's back, so the store has no playlist
	conn.LoadPlaylist(testEntries("A"), 0)
	waitForCurrent(t, s, "A")
	require.Empty(t, s.State().Playlist)

	s.ToggleFavorite()
	assert.Equal(t, ShowNotice{Text: "Added to favorites"}, nextEvent(t, s))
	require.Len(t, favs.Entries(), 1)
	e := favs.Entries()[0]
	assert.Equal(t, "A", e.ID)
	assert.Equal(t, "Title A", e.Title)
	assert.Equal(t, "Artist A", e.Artist)
}

func TestPlayerStateStore_ToggleFavoriteWithoutCurrentItem(t *testing.T) {
	favs := favorites.NewMemoryStore()
	s, _ := newTestStore(t, newFakeEngine(), favs, nil)
	s.ToggleFavorite()
	s.sync()
	assert.Empty(t, favs.Entries())
	assert.Zero(t, s.Events().Pending())
}

func TestPlayerStateStore_SubscribeDeliversSnapshots(t *testing.T) {
	s, _ := newTestStore(t, newFakeEngine(), nil, nil)
	got := make(chan UiState, 16)
	unsub := s.Subscribe(func(st UiState) { got <- st })
	defer unsub()

	first := <-got
	assert.Equal(t, notPlayingTitle, first.Title)

	s.Play(testEntries("A"), 0)
	for {
		select {
		case st := <-got:
			for _, item := range st.Playlist {
				assert.False(t, item.IsCurrent && item.IsPlaying != st.IsPlaying)
			}
			if st.CurrentID() == "A" && st.IsPlaying {
				return
			}
		case <-time.After(eventually):
			t.Fatal("no snapshot for the playing item")
		}
	}
}

// reads the polling handle on the store's own goroutine
func (s *PlayerStateStore) cancelPollForTest() context.CancelFunc {
	ch := make(chan context.CancelFunc, 1)
	s.post(func() { ch <- s.cancelPoll })
	return <-ch
}
