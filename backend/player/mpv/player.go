package mpv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/samber/mo"
	log "github.com/sirupsen/logrus"
	"github.com/supersonic-app/go-mpv"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
	"github.com/supersonic-app/nowplaying/backend/player"
)

// Error returned by many Player functions if called before the player has not been initialized.
var ErrUnitialized error = errors.New("mpv player uninitialized")

const (
	observePause       = 1
	observePlaylistPos = 2
)

var _ player.Engine = (*Player)(nil)

// Options for the mpv engine.
type Options struct {
	ClientName  string
	AudioDevice string
	MaxCacheMB  int
}

// Player encapsulates the mpv instance and adapts it to the
// player.Engine interface.
type Player struct {
	player.EngineCallbackImpl

	opts        Options
	mpv         *mpv.Mpv
	initialized bool

	mu       sync.Mutex
	items    []mediaprovider.PlaylistEntry
	curIdx   int
	state    player.TransportState
	loaded   bool // current file has reached FILE_LOADED
	starting bool // a file has started loading but not finished

	bgCancel context.CancelFunc
}

// Returns a new player.
// Must call Init on the player before it is ready for playback.
func New(opts Options) *Player {
	return &Player{opts: opts, curIdx: -1}
}

// Bind returns a Binder that creates and initializes an mpv engine.
func Bind(opts Options) player.Binder {
	return func(ctx context.Context) (player.Engine, error) {
		p := New(opts)
		if err := p.Init(); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func (p *Player) Init() error {
	if p.initialized {
		return nil
	}
	m := mpv.Create()

	m.SetOptionString("idle", "yes")
	m.SetOptionString("video", "no")
	m.SetOptionString("audio-display", "no")
	m.SetOptionString("gapless-audio", "weak")
	m.SetOptionString("prefetch-playlist", "yes")
	m.SetOptionString("terminal", "no")

	if p.opts.MaxCacheMB > 0 {
		maxBackMB := p.opts.MaxCacheMB / 3
		m.SetOptionString("demuxer-max-bytes", fmt.Sprintf("%dMiB", 2*maxBackMB))
		m.SetOptionString("demuxer-max-back-bytes", fmt.Sprintf("%dMiB", maxBackMB))
	}
	if p.opts.ClientName != "" {
		m.SetOptionString("audio-client-name", p.opts.ClientName)
	}
	if p.opts.AudioDevice != "" {
		m.SetOptionString("audio-device", p.opts.AudioDevice)
	}

	m.ObserveProperty(observePause, "pause", mpv.FORMAT_FLAG)
	m.ObserveProperty(observePlaylistPos, "playlist-pos", mpv.FORMAT_INT64)

	if err := m.Initialize(); err != nil {
		return fmt.Errorf("error initializing mpv: %s", err.Error())
	}
	p.mpv = m

	ctx, cancel := context.WithCancel(context.Background())
	go p.eventHandler(ctx)
	p.bgCancel = cancel
	p.initialized = true
	return nil
}

func (p *Player) LoadPlaylist(items []mediaprovider.PlaylistEntry, startIndex int) error {
	if !p.initialized {
		return ErrUnitialized
	}
	if startIndex < 0 || startIndex >= len(items) {
		return fmt.Errorf("start index %d out of range", startIndex)
	}
	p.mu.Lock()
	p.items = append([]mediaprovider.PlaylistEntry(nil), items...)
	p.curIdx = startIndex
	p.loaded = false
	p.mu.Unlock()

	for i, it := range items {
		mode := "append"
		if i == 0 {
			mode = "replace"
		}
		if err := p.mpv.Command([]string{"loadfile", it.SourceURI, mode}); err != nil {
			return fmt.Errorf("failed to queue %s: %w", it.SourceURI, err)
		}
	}
	p.InvokeOnCurrentItemChanged()
	if err := p.mpv.Command([]string{"playlist-play-index", strconv.Itoa(startIndex)}); err != nil {
		return err
	}
	return p.mpv.SetProperty("pause", mpv.FORMAT_FLAG, false)
}

func (p *Player) Play() error {
	if !p.initialized {
		return ErrUnitialized
	}
	p.mu.Lock()
	state, idx, n := p.state, p.curIdx, len(p.items)
	p.mu.Unlock()
	if state == player.Idle && idx >= 0 && idx < n {
		// re-prepare from the default position
		if err := p.mpv.Command([]string{"playlist-play-index", strconv.Itoa(idx)}); err != nil {
			return err
		}
	}
	return p.mpv.SetProperty("pause", mpv.FORMAT_FLAG, false)
}

func (p *Player) Pause() error {
	if !p.initialized {
		return ErrUnitialized
	}
	return p.mpv.SetProperty("pause", mpv.FORMAT_FLAG, true)
}

func (p *Player) Stop() error {
	if !p.initialized {
		return ErrUnitialized
	}
	return p.mpv.Command([]string{"stop", "keep-playlist"})
}

func (p *Player) SeekTo(ms int64) error {
	if !p.initialized {
		return ErrUnitialized
	}
	secs := float64(ms) / 1000
	return p.mpv.Command([]string{"seek", strconv.FormatFloat(secs, 'f', 3, 64), "absolute"})
}

func (p *Player) SkipNext() error {
	if !p.initialized {
		return ErrUnitialized
	}
	return p.mpv.Command([]string{"playlist-next"})
}

func (p *Player) SkipPrevious() error {
	if !p.initialized {
		return ErrUnitialized
	}
	return p.mpv.Command([]string{"playlist-prev"})
}

func (p *Player) SkipToIndex(idx int) error {
	if !p.initialized {
		return ErrUnitialized
	}
	return p.mpv.Command([]string{"playlist-play-index", strconv.Itoa(idx)})
}

// Get the current status of the player.
func (p *Player) Status() player.Status {
	p.mu.Lock()
	st := player.Status{State: p.state, Index: p.curIdx}
	if p.curIdx >= 0 && p.curIdx < len(p.items) {
		st.DurationMs = p.items[p.curIdx].DurationMs
	}
	p.mu.Unlock()

	if !p.initialized || st.State == player.Idle {
		return st
	}
	st.PositionMs = p.Position()
	if dur, _ := p.mpv.GetProperty("duration", mpv.FORMAT_DOUBLE); dur != nil {
		st.DurationMs = int64(dur.(float64) * 1000)
	}
	return st
}

func (p *Player) CurrentItem() mo.Option[mediaprovider.PlaylistEntry] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.curIdx < 0 || p.curIdx >= len(p.items) {
		return mo.None[mediaprovider.PlaylistEntry]()
	}
	return mo.Some(p.items[p.curIdx])
}

func (p *Player) Position() int64 {
	if !p.initialized {
		return 0
	}
	pos, _ := p.mpv.GetProperty("playback-time", mpv.FORMAT_DOUBLE)
	if pos == nil {
		return 0
	}
	return int64(pos.(float64) * 1000)
}

// Close destroys the player.
func (p *Player) Close() {
	if p.bgCancel != nil {
		p.bgCancel()
	}
	if p.initialized {
		p.mpv.Command([]string{"stop"})
		p.mpv.TerminateDestroy()
		p.initialized = false
	}
}

func (p *Player) getInt64Property(propName string) (int64, error) {
	v, err := p.mpv.GetProperty(propName, mpv.FORMAT_INT64)
	if err != nil {
		return -1, err
	}
	if v != nil {
		return v.(int64), nil
	}
	return -1, fmt.Errorf("mpv did not report %s", propName)
}

// sets the state and invokes the callback, if changed
func (p *Player) setState(s player.TransportState) {
	p.mu.Lock()
	changed := p.state != s
	p.state = s
	p.mu.Unlock()
	if changed {
		p.InvokeOnTransportChanged()
	}
}

func (p *Player) syncPauseState() {
	paused, _ := p.mpv.GetProperty("pause", mpv.FORMAT_FLAG)
	p.mu.Lock()
	loaded := p.loaded
	p.mu.Unlock()
	if !loaded || paused == nil {
		return
	}
	if paused.(bool) {
		p.setState(player.Paused)
	} else {
		p.setState(player.Playing)
	}
}

func (p *Player) eventHandler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			e := p.mpv.WaitEvent(1 /*timeout seconds*/)
			switch e.Event_Id {
			case mpv.EVENT_START_FILE:
				p.mu.Lock()
				p.starting = true
				p.loaded = false
				p.mu.Unlock()
			case mpv.EVENT_FILE_LOADED:
				p.mu.Lock()
				p.starting = false
				p.loaded = true
				p.mu.Unlock()
				p.syncPauseState()
			case mpv.EVENT_END_FILE:
				p.mu.Lock()
				failed := p.starting
				p.starting = false
				p.loaded = false
				var title string
				if p.curIdx >= 0 && p.curIdx < len(p.items) {
					title = p.items[p.curIdx].Title
				}
				p.mu.Unlock()
				if failed {
					log.Warnf("mpv failed to load %q", title)
					p.setState(player.Idle)
					p.InvokeOnError(fmt.Sprintf("could not play %q", title))
				}
			case mpv.EVENT_IDLE:
				p.mu.Lock()
				p.loaded = false
				p.mu.Unlock()
				p.setState(player.Idle)
			case mpv.EVENT_PROPERTY_CHANGE:
				switch e.Reply_Userdata {
				case observePause:
					p.syncPauseState()
				case observePlaylistPos:
					pos, err := p.getInt64Property("playlist-pos")
					if err != nil || pos < 0 {
						continue
					}
					p.mu.Lock()
					changed := int(pos) != p.curIdx
					p.curIdx = int(pos)
					p.mu.Unlock()
					if changed {
						p.InvokeOnCurrentItemChanged()
					}
				}
			}
		}
	}
}
