package backend

import (
	"slices"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
	"github.com/supersonic-app/nowplaying/backend/player"
)

const notPlayingTitle = "Not Playing"

// PlaylistItem is a playlist entry annotated with its relation
// to the current item.
type PlaylistItem struct {
	mediaprovider.PlaylistEntry
	IsCurrent bool
	IsPlaying bool
}

// UiState is one immutable, internally consistent snapshot of
// everything the player UI displays. It is replaced wholesale on
// every change and must not be mutated by consumers.
type UiState struct {
	IsPlaying       bool
	CurrentMediaID  mo.Option[string]
	Title           string
	Artist          string
	ArtworkURI      string
	DurationMs      int64
	PositionMs      int64
	IsFavorite      bool
	IsRadioStream   bool
	IsPlayerVisible bool
	Playlist        []PlaylistItem
	// Index of the current item within Playlist, or -1.
	CurrentIndex int
	Waveform     []float32
}

// CurrentID returns the current media ID, or "" if none.
func (s UiState) CurrentID() string {
	return s.CurrentMediaID.OrEmpty()
}

func (s UiState) Equal(o UiState) bool {
	return s.IsPlaying == o.IsPlaying &&
		s.CurrentMediaID == o.CurrentMediaID &&
		s.Title == o.Title &&
		s.Artist == o.Artist &&
		s.ArtworkURI == o.ArtworkURI &&
		s.DurationMs == o.DurationMs &&
		s.PositionMs == o.PositionMs &&
		s.IsFavorite == o.IsFavorite &&
		s.IsRadioStream == o.IsRadioStream &&
		s.IsPlayerVisible == o.IsPlayerVisible &&
		s.CurrentIndex == o.CurrentIndex &&
		slices.Equal(s.Playlist, o.Playlist) &&
		slices.Equal(s.Waveform, o.Waveform)
}

func initialUiState() UiState {
	return UiState{Title: notPlayingTitle, CurrentIndex: -1}
}

// PlayerEvent is a one-shot notification for the presentation layer.
type PlayerEvent interface {
	isPlayerEvent()
}

// ShowNotice asks for a transient notice (toast).
type ShowNotice struct {
	Text string
}

// ShowErrorDialog asks for a dialog the user must dismiss.
type ShowErrorDialog struct {
	Title string
	Text  string
}

// RequestExpand asks the presentation layer to expand the player.
type RequestExpand struct{}

func (ShowNotice) isPlayerEvent()      {}
func (ShowErrorDialog) isPlayerEvent() {}
func (RequestExpand) isPlayerEvent()   {}

// latest known value of every source folded into UiState
type stateSources struct {
	transport  player.TransportState
	item       mo.Option[mediaprovider.PlaylistEntry]
	positionMs int64
	durationMs int64
	favorite   bool
	playlist   []mediaprovider.PlaylistEntry
	waveform   []float32
}

func deriveUiState(src stateSources) UiState {
	st := initialUiState()
	st.IsPlaying = src.transport == player.Playing
	st.PositionMs = src.positionMs
	st.Waveform = src.waveform

	item, ok := src.item.Get()
	if ok && item.ID == "" {
		ok = false
	}
	if ok {
		st.CurrentMediaID = mo.Some(item.ID)
		st.IsPlayerVisible = true
		st.Title = item.Title
		st.Artist = item.Artist
		st.ArtworkURI = item.ArtworkURI
		st.IsRadioStream = item.IsStream()
		st.IsFavorite = src.favorite
		st.DurationMs = item.DurationMs
		if src.durationMs > 0 {
			st.DurationMs = src.durationMs
		}
	}

	curID := st.CurrentID()
	_, st.CurrentIndex, _ = lo.FindIndexOf(src.playlist, func(e mediaprovider.PlaylistEntry) bool {
		return curID != "" && e.ID == curID
	})
	st.Playlist = lo.Map(src.playlist, func(e mediaprovider.PlaylistEntry, i int) PlaylistItem {
		isCurrent := i == st.CurrentIndex
		return PlaylistItem{
			PlaylistEntry: e,
			IsCurrent:     isCurrent,
			IsPlaying:     isCurrent && st.IsPlaying,
		}
	})
	return st
}
