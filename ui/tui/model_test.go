package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supersonic-app/nowplaying/backend"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
	"github.com/supersonic-app/nowplaying/ui/sheet"
)

type fakePlayer struct {
	calls []string
	seeks []int64
	skips []int
}

func (f *fakePlayer) State() backend.UiState {
	return backend.UiState{Title: "Not Playing", CurrentIndex: -1}
}
func (f *fakePlayer) TogglePlayPause() { f.calls = append(f.calls, "toggle") }
func (f *fakePlayer) SkipNext()        { f.calls = append(f.calls, "next") }
func (f *fakePlayer) SkipPrevious()    { f.calls = append(f.calls, "previous") }
func (f *fakePlayer) ToggleFavorite()  { f.calls = append(f.calls, "favorite") }
func (f *fakePlayer) SeekTo(ms int64)  { f.seeks = append(f.seeks, ms) }
func (f *fakePlayer) SkipTo(index int) { f.skips = append(f.skips, index) }

func playingState(index int, stream bool) backend.UiState {
	ids := []string{"a", "b", "c"}
	st := backend.UiState{
		IsPlaying:       true,
		CurrentMediaID:  mo.Some(ids[index]),
		Title:           "Song " + ids[index],
		Artist:          "Artist",
		DurationMs:      60_000,
		PositionMs:      55_000,
		IsRadioStream:   stream,
		IsPlayerVisible: true,
		CurrentIndex:    index,
	}
	for i, id := range ids {
		st.Playlist = append(st.Playlist, backend.PlaylistItem{
			PlaylistEntry: mediaprovider.PlaylistEntry{ID: id, Title: "Song " + id},
			IsCurrent:     i == index,
		})
	}
	return st
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func TestModel_SheetFollowsState(t *testing.T) {
	m := New(Options{Player: &fakePlayer{}})
	assert.Equal(t, sheet.Hidden, m.SheetState())
	assert.Contains(t, m.View(), "Nothing playing")

	m = update(t, m, stateMsg(playingState(0, false)))
	assert.Equal(t, sheet.Collapsed, m.SheetState())
	assert.Contains(t, m.View(), "Song a")

	m = update(t, m, keyMsg("enter"))
	assert.Equal(t, sheet.Expanded, m.SheetState())
	m = update(t, m, keyMsg("esc"))
	assert.Equal(t, sheet.Collapsed, m.SheetState())

	m = update(t, m, eventMsg{event: backend.RequestExpand{}})
	assert.Equal(t, sheet.Expanded, m.SheetState())
}

func TestModel_TransportKeys(t *testing.T) {
	p := &fakePlayer{}
	m := update(t, New(Options{Player: p}), stateMsg(playingState(1, false)))
	m = update(t, m, keyMsg(" "), keyMsg("n"), keyMsg("p"), keyMsg("f"))
	assert.Equal(t, []string{"toggle", "next", "previous", "favorite"}, p.calls)

	m = update(t, m, keyMsg("right"), keyMsg("left"))
	assert.Equal(t, []int64{60_000, 45_000}, p.seeks, "seeks clamp to the duration")

	// no seeking in live streams
	update(t, m, stateMsg(playingState(1, true)), keyMsg("right"))
	assert.Len(t, p.seeks, 2)
}

func TestModel_CarouselSwipeSkips(t *testing.T) {
	p := &fakePlayer{}
	m := update(t, New(Options{Player: p}), stateMsg(playingState(0, false)))

	m = update(t, m, keyMsg("]"))
	assert.Empty(t, p.skips, "carousel only pages while expanded")

	m = update(t, m, keyMsg("enter"), keyMsg("]"), keyMsg("]"))
	assert.Equal(t, []int{1, 2}, p.skips)
	assert.Contains(t, m.View(), "3 / 3")
}

func TestModel_Events(t *testing.T) {
	m := New(Options{Player: &fakePlayer{}})

	next, cmd := m.Update(eventMsg{event: backend.ShowNotice{Text: "Added to favorites"}})
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Added to favorites")

	m = update(t, m, clearNoticeMsg(m.noticeSeq-1))
	assert.Contains(t, m.View(), "Added to favorites", "stale timers do not clear newer notices")
	m = update(t, m, clearNoticeMsg(m.noticeSeq))
	assert.NotContains(t, m.View(), "Added to favorites")

	m = update(t, m, eventMsg{event: backend.ShowErrorDialog{Title: "Station Unavailable", Text: "Trying next..."}})
	assert.Contains(t, m.View(), "Station Unavailable")
	m = update(t, m, keyMsg("enter"))
	assert.NotContains(t, m.View(), "Station Unavailable")
}

func TestWaitForEvent(t *testing.T) {
	q := backend.NewEventQueue(4)
	q.Emit(backend.ShowNotice{Text: "hi"})
	msg := waitForEvent(context.Background(), q)()
	assert.Equal(t, eventMsg{event: backend.ShowNotice{Text: "hi"}}, msg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Nil(t, waitForEvent(ctx, q)())
	assert.Nil(t, waitForEvent(ctx, nil))
}

func TestWaveformView(t *testing.T) {
	assert.Equal(t, "", waveformView(nil, 10))
	assert.Equal(t, "▁█", waveformView([]float32{0, 1}, 2))
	assert.Equal(t, "▁▁██", waveformView([]float32{0, 1}, 4))
}
