package backend

import (
	"encoding/base32"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/events"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
)

const (
	dbusTrackIDPrefix = "/NowPlaying/Track/"
	noTrackObjectPath = "/org/mpris/MediaPlayer2/TrackList/NoTrack"
)

var (
	_ types.OrgMprisMediaPlayer2Adapter       = (*MPRISHandler)(nil)
	_ types.OrgMprisMediaPlayer2PlayerAdapter = (*MPRISHandler)(nil)
)

var (
	errNotSupported = errors.New("not supported")
)

// MPRISHandler publishes the player state over D-Bus and forwards
// desktop media keys to the store.
type MPRISHandler struct {
	// Function called if the player is requested to quit through MPRIS.
	// Should *asynchronously* start shutdown and return immediately true if a shutdown will happen.
	OnQuit func() error

	// Function called if the player is requested to bring its UI to the front.
	OnRaise func() error

	playerName  string
	store       *PlayerStateStore
	s           *server.Server
	evt         *events.EventHandler
	unsubscribe func()

	mu      sync.Mutex
	connErr error
	cur     UiState
}

func NewMPRISHandler(playerName string, store *PlayerStateStore) *MPRISHandler {
	m := &MPRISHandler{
		playerName: playerName,
		store:      store,
		connErr:    errors.New("not started"),
		cur:        initialUiState(),
	}
	m.s = server.NewServer(playerName, m, m)
	m.evt = events.NewEventHandler(m.s)
	return m
}

// Starts listening for MPRIS events.
func (m *MPRISHandler) Start() {
	m.mu.Lock()
	m.connErr = nil
	m.mu.Unlock()
	m.unsubscribe = m.store.Subscribe(m.onState)
	go func() {
		// exits early with err if unable to establish D-Bus connection
		err := m.s.Listen()
		m.mu.Lock()
		m.connErr = err
		m.mu.Unlock()
	}()
}

// Stops listening for MPRIS events and releases any D-Bus resources.
func (m *MPRISHandler) Shutdown() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connErr == nil {
		m.s.Stop()
		m.connErr = errors.New("stopped")
	}
}

func (m *MPRISHandler) onState(st UiState) {
	m.mu.Lock()
	prev := m.cur
	m.cur = st
	connected := m.connErr == nil
	m.mu.Unlock()
	if !connected {
		return
	}

	if prev.CurrentMediaID != st.CurrentMediaID || prev.Title != st.Title || prev.DurationMs != st.DurationMs {
		m.evt.Player.OnTitle()
	}
	if prev.IsPlaying != st.IsPlaying {
		m.evt.Player.OnPlayPause()
	}
}

func (m *MPRISHandler) state() UiState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// OrgMprisMediaPlayer2Adapter implementation

func (m *MPRISHandler) Identity() (string, error) {
	return m.playerName, nil
}

func (m *MPRISHandler) CanQuit() (bool, error) {
	return m.OnQuit != nil, nil
}

func (m *MPRISHandler) Quit() error {
	if m.OnQuit != nil {
		return m.OnQuit()
	}
	return errors.New("no quit handler added")
}

func (m *MPRISHandler) CanRaise() (bool, error) {
	return m.OnRaise != nil, nil
}

func (m *MPRISHandler) Raise() error {
	if m.OnRaise != nil {
		return m.OnRaise()
	}
	return errors.New("no raise handler added")
}

func (m *MPRISHandler) HasTrackList() (bool, error) {
	return false, nil
}

func (m *MPRISHandler) SupportedUriSchemes() ([]string, error) {
	return nil, nil
}

func (m *MPRISHandler) SupportedMimeTypes() ([]string, error) {
	return nil, nil
}

// OrgMprisMediaPlayer2PlayerAdapter implementation

func (m *MPRISHandler) Next() error {
	m.store.SkipNext()
	return nil
}

func (m *MPRISHandler) Previous() error {
	m.store.SkipPrevious()
	return nil
}

func (m *MPRISHandler) Pause() error {
	if m.state().IsPlaying {
		m.store.TogglePlayPause()
	}
	return nil
}

func (m *MPRISHandler) PlayPause() error {
	m.store.TogglePlayPause()
	return nil
}

// There is no separate stopped state; streams stop when paused.
func (m *MPRISHandler) Stop() error {
	return m.Pause()
}

func (m *MPRISHandler) Play() error {
	if st := m.state(); !st.IsPlaying && st.IsPlayerVisible {
		m.store.TogglePlayPause()
	}
	return nil
}

func (m *MPRISHandler) Seek(offset types.Microseconds) error {
	st := m.state()
	if st.IsRadioStream || !st.IsPlayerVisible {
		return errNotSupported
	}
	// MPRIS seek command is relative to current position
	pos := max(st.PositionMs+microsecondsToMillis(offset), 0)
	if st.DurationMs > 0 && pos > st.DurationMs {
		m.store.SkipNext()
		return nil
	}
	m.seek(pos)
	return nil
}

func (m *MPRISHandler) SetPosition(trackId string, position types.Microseconds) error {
	st := m.state()
	if trackObjectPath(st) == trackId && !st.IsRadioStream {
		m.seek(microsecondsToMillis(position))
	}
	return nil
}

func (m *MPRISHandler) seek(ms int64) {
	m.store.SeekTo(ms)
	m.mu.Lock()
	connected := m.connErr == nil
	m.mu.Unlock()
	if connected {
		m.evt.Player.OnSeek(millisToMicroseconds(ms))
	}
}

func (m *MPRISHandler) OpenUri(uri string) error {
	return errNotSupported
}

func (m *MPRISHandler) PlaybackStatus() (types.PlaybackStatus, error) {
	st := m.state()
	switch {
	case st.IsPlaying:
		return types.PlaybackStatusPlaying, nil
	case st.IsPlayerVisible && !st.IsRadioStream:
		return types.PlaybackStatusPaused, nil
	default:
		return types.PlaybackStatusStopped, nil
	}
}

func (m *MPRISHandler) Rate() (float64, error) {
	return 1, nil
}

func (m *MPRISHandler) SetRate(float64) error {
	return errNotSupported
}

func (m *MPRISHandler) Metadata() (types.Metadata, error) {
	st := m.state()
	md := types.Metadata{
		TrackId: dbus.ObjectPath(trackObjectPath(st)),
	}
	if st.IsPlayerVisible {
		md.Length = millisToMicroseconds(st.DurationMs)
		md.Title = st.Title
		md.Artist = []string{st.Artist}
		md.ArtUrl = st.ArtworkURI
		md.UserRating = 0
		if st.IsFavorite {
			md.UserRating = 1
		}
	}
	return md, nil
}

func (m *MPRISHandler) Volume() (float64, error) {
	return 1, nil
}

func (m *MPRISHandler) SetVolume(v float64) error {
	return errNotSupported
}

func (m *MPRISHandler) Position() (int64, error) {
	return int64(millisToMicroseconds(m.state().PositionMs)), nil
}

func (m *MPRISHandler) MinimumRate() (float64, error) {
	return 1, nil
}

func (m *MPRISHandler) MaximumRate() (float64, error) {
	return 1, nil
}

func (m *MPRISHandler) CanGoNext() (bool, error) {
	return true, nil
}

func (m *MPRISHandler) CanGoPrevious() (bool, error) {
	return true, nil
}

func (m *MPRISHandler) CanPlay() (bool, error) {
	return m.state().IsPlayerVisible, nil
}

func (m *MPRISHandler) CanPause() (bool, error) {
	return true, nil
}

func (m *MPRISHandler) CanSeek() (bool, error) {
	return !m.state().IsRadioStream, nil
}

func (m *MPRISHandler) CanControl() (bool, error) {
	return true, nil
}

func trackObjectPath(st UiState) string {
	id, ok := st.CurrentMediaID.Get()
	if !ok {
		return noTrackObjectPath
	}
	return dbusTrackIDPrefix + encodeTrackId(id)
}

func microsecondsToMillis(m types.Microseconds) int64 {
	return int64(m) / 1_000
}

func millisToMicroseconds(ms int64) types.Microseconds {
	return types.Microseconds(ms * 1_000)
}

func encodeTrackId(id string) string {
	data := []byte(id)
	return base32.StdEncoding.WithPadding('0').EncodeToString(data)
}
