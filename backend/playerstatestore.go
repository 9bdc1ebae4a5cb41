package backend

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"
	log "github.com/sirupsen/logrus"
	"github.com/supersonic-app/nowplaying/backend/favorites"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
	"github.com/supersonic-app/nowplaying/backend/player"
	"github.com/supersonic-app/nowplaying/backend/util"
)

const (
	radioErrorTitle = "Station Unavailable"
	radioErrorText  = "Trying next..."
)

type StoreOptions struct {
	PositionPollInterval time.Duration
	EventQueueSize       int
}

// PlayerStateStore folds the playback connection, favorite status and
// waveform generation into a single UiState, and exposes the command
// surface used by the presentation layer.
//
// All state is owned by one goroutine (the run loop). Upstream
// notifications and commands are posted to its mailbox, and every
// recompute reads the latest value of all sources, so a published
// snapshot never mixes fields from different moments.
type PlayerStateStore struct {
	conn         *PlaybackConnection
	favorites    favorites.Store
	waveforms    WaveformGenerator
	events       *EventQueue
	state        *util.Observable[UiState]
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mailboxLock sync.Mutex
	mailbox     []func()
	wake        chan struct{}

	// owned by the run loop
	src            stateSources
	trackedID      string
	cancelFavorite func()
	cancelWaveform context.CancelFunc
	cancelPoll     context.CancelFunc
	unsubscribe    []func()
}

func NewPlayerStateStore(ctx context.Context, conn *PlaybackConnection, favs favorites.Store, waveforms WaveformGenerator, opts StoreOptions) *PlayerStateStore {
	if opts.PositionPollInterval <= 0 {
		opts.PositionPollInterval = 200 * time.Millisecond
	}
	s := &PlayerStateStore{
		conn:         conn,
		favorites:    favs,
		waveforms:    waveforms,
		events:       NewEventQueue(opts.EventQueueSize),
		state:        util.NewObservableFunc(initialUiState(), UiState.Equal),
		pollInterval: opts.PositionPollInterval,
		done:         make(chan struct{}),
		wake:         make(chan struct{}, 1),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	tick := func() { s.post(s.refresh) }
	s.post(func() {
		s.unsubscribe = []func(){
			subscribeTick(conn.Transport, tick),
			subscribeTick(conn.CurrentItem, tick),
			subscribeTick(conn.PositionMs, tick),
			subscribeTick(conn.DurationMs, tick),
			conn.Error.Subscribe(func(e mo.Option[string]) {
				if msg, ok := e.Get(); ok {
					s.post(func() { s.handleError(msg) })
				}
			}),
		}
	})
	go s.run()
	return s
}

// State returns the latest published snapshot.
func (s *PlayerStateStore) State() UiState {
	return s.state.Get()
}

// Subscribe calls cb with the current snapshot and every subsequent one.
// Snapshots may be skipped if cb is slow, but the latest is always delivered.
func (s *PlayerStateStore) Subscribe(cb func(UiState)) func() {
	return s.state.Subscribe(cb)
}

// Events returns the queue of one-shot notifications.
func (s *PlayerStateStore) Events() *EventQueue {
	return s.events
}

// Play starts playing list from index. If the selected item is already
// the current one, it toggles play/pause instead and requests the
// player be expanded.
func (s *PlayerStateStore) Play(list []mediaprovider.PlaylistEntry, index int) {
	list = slices.Clone(list)
	s.post(func() {
		if index < 0 || index >= len(list) {
			return
		}
		if id := list[index].ID; id != "" && id == s.currentID() {
			// keep the playlist the engine has queued
			s.conn.TogglePlayPause()
			s.events.Emit(RequestExpand{})
		} else {
			s.src.playlist = list
			s.conn.LoadPlaylist(list, index)
		}
		s.publish()
	})
}

func (s *PlayerStateStore) TogglePlayPause() {
	s.conn.TogglePlayPause()
}

func (s *PlayerStateStore) SkipNext() {
	s.conn.SkipNext()
}

func (s *PlayerStateStore) SkipPrevious() {
	s.conn.SkipPrevious()
}

func (s *PlayerStateStore) SeekTo(ms int64) {
	s.conn.SeekTo(ms)
}

// SkipTo skips to index in the current playlist.
// Out of range indexes are ignored.
func (s *PlayerStateStore) SkipTo(index int) {
	s.post(func() {
		if index < 0 || index >= len(s.src.playlist) {
			return
		}
		s.conn.SkipToIndex(index)
	})
}

// ToggleFavorite adds or removes the current item from favorites.
func (s *PlayerStateStore) ToggleFavorite() {
	s.post(func() {
		id := s.currentID()
		if id == "" || s.favorites == nil {
			return
		}
		entry, ok := lo.Find(s.src.playlist, func(e mediaprovider.PlaylistEntry) bool { return e.ID == id })
		if !ok {
			// only bare metadata survived (eg. after a restart);
			// build the entry from what is displayed
			st := s.state.Get()
			entry = mediaprovider.PlaylistEntry{
				ID:         id,
				Title:      st.Title,
				Artist:     st.Artist,
				ArtworkURI: st.ArtworkURI,
				DurationMs: st.DurationMs,
			}
			if st.IsRadioStream {
				entry.Kind = mediaprovider.KindStream
			}
		}
		wasFavorite := s.src.favorite
		go func() {
			var err error
			notice := "Added to favorites"
			if wasFavorite {
				err = s.favorites.Remove(s.ctx, entry)
				notice = "Removed from favorites"
			} else {
				err = s.favorites.Add(s.ctx, entry)
			}
			if err != nil {
				log.WithError(err).Warnf("failed to update favorite %s", entry.ID)
				notice = "Could not update favorites"
			}
			s.events.Emit(ShowNotice{Text: notice})
		}()
	})
}

// Close stops the store and all its background work.
func (s *PlayerStateStore) Close() {
	s.cancel()
	<-s.done
}

func (s *PlayerStateStore) post(f func()) {
	s.mailboxLock.Lock()
	s.mailbox = append(s.mailbox, f)
	s.mailboxLock.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *PlayerStateStore) takeMail() []func() {
	s.mailboxLock.Lock()
	defer s.mailboxLock.Unlock()
	m := s.mailbox
	s.mailbox = nil
	return m
}

func (s *PlayerStateStore) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case <-s.wake:
			for _, f := range s.takeMail() {
				f()
			}
		}
	}
}

func (s *PlayerStateStore) shutdown() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.stopPolling()
	if s.cancelWaveform != nil {
		s.cancelWaveform()
	}
	if s.cancelFavorite != nil {
		s.cancelFavorite()
	}
}

// waits until everything posted before has been handled
func (s *PlayerStateStore) sync() {
	done := make(chan struct{})
	s.post(func() { close(done) })
	select {
	case <-done:
	case <-s.done:
	}
}

func (s *PlayerStateStore) currentID() string {
	item, _ := s.conn.CurrentItem.Get().Get()
	return item.ID
}

func (s *PlayerStateStore) refresh() {
	s.src.transport = s.conn.Transport.Get()
	s.src.item = s.conn.CurrentItem.Get()
	s.src.positionMs = s.conn.PositionMs.Get()
	s.src.durationMs = s.conn.DurationMs.Get()
	s.trackCurrentItem()
	s.updatePolling()
	s.publish()
}

func (s *PlayerStateStore) publish() {
	s.state.Set(deriveUiState(s.src))
}

// re-scopes waveform generation and the favorite lookup
// when the current item changes
func (s *PlayerStateStore) trackCurrentItem() {
	item, _ := s.src.item.Get()
	id := item.ID
	if id == s.trackedID {
		return
	}
	s.trackedID = id

	if s.cancelWaveform != nil {
		s.cancelWaveform()
		s.cancelWaveform = nil
	}
	s.src.waveform = nil
	if id != "" && !item.IsStream() && s.waveforms != nil {
		ctx, cancel := context.WithCancel(s.ctx)
		s.cancelWaveform = cancel
		go s.generateWaveform(ctx, item)
	}

	if s.cancelFavorite != nil {
		s.cancelFavorite()
		s.cancelFavorite = nil
	}
	s.src.favorite = false
	if id != "" && s.favorites != nil {
		s.cancelFavorite = s.favorites.Watch(s.ctx, id, func(fav bool) {
			s.post(func() {
				if s.trackedID == id {
					s.src.favorite = fav
					s.publish()
				}
			})
		})
	}
}

func (s *PlayerStateStore) generateWaveform(ctx context.Context, item mediaprovider.PlaylistEntry) {
	bars, err := s.waveforms.Generate(ctx, item)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warnf("failed to generate waveform for %s", item.ID)
		}
		return
	}
	s.post(func() {
		// superseded by a newer item
		if ctx.Err() != nil {
			return
		}
		s.src.waveform = bars
		s.publish()
	})
}

func (s *PlayerStateStore) updatePolling() {
	item, _ := s.src.item.Get()
	shouldPoll := s.src.transport == player.Playing && !item.IsStream()
	if shouldPoll && s.cancelPoll == nil {
		s.startPolling()
	} else if !shouldPoll {
		s.stopPolling()
	}
}

func (s *PlayerStateStore) startPolling() {
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelPoll = cancel
	pollingTick := time.NewTicker(s.pollInterval)

	go func() {
		for {
			select {
			case <-ctx.Done():
				pollingTick.Stop()
				return
			case <-pollingTick.C:
				s.conn.UpdatePosition()
			}
		}
	}()
}

func (s *PlayerStateStore) stopPolling() {
	if s.cancelPoll != nil {
		s.cancelPoll()
		s.cancelPoll = nil
	}
}

func (s *PlayerStateStore) handleError(msg string) {
	s.refresh()
	if s.state.Get().IsRadioStream {
		s.events.Emit(ShowErrorDialog{Title: radioErrorTitle, Text: radioErrorText})
	} else {
		s.events.Emit(ShowNotice{Text: msg})
	}
	s.conn.ClearError()
}

func subscribeTick[T any](o *util.Observable[T], tick func()) func() {
	return o.Subscribe(func(T) { tick() })
}
