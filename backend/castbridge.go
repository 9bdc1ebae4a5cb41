package backend

import (
	"context"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
	"github.com/supersonic-app/nowplaying/backend/player"
)

const (
	castLoadTimeout    = 15 * time.Second
	defaultContentType = "audio/mpeg"
)

type CastState int

const (
	CastDisconnected CastState = iota
	CastConnecting
	CastConnected
)

func (c CastState) String() string {
	switch c {
	case CastConnecting:
		return "connecting"
	case CastConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// CastBridge mirrors the current item onto a cast session while one is
// connected. It loads each distinct item at most once per session, and
// pauses the local output when it does.
type CastBridge struct {
	store *PlayerStateStore
	conn  *PlaybackConnection

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          CastState
	session        player.CastSession
	suspended      bool
	lastMirroredID string
	lastRefusedID  string
	unsubscribe    func()
	pending        *castLoad
	loadWake       chan struct{}
}

type castLoad struct {
	session    player.CastSession
	media      player.CastMedia
	positionMs int64
}

var _ player.SessionListener = (*CastBridge)(nil)

func NewCastBridge(ctx context.Context, store *PlayerStateStore, conn *PlaybackConnection) *CastBridge {
	b := &CastBridge{
		store:    store,
		conn:     conn,
		loadWake: make(chan struct{}, 1),
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	go b.loader()
	return b
}

func (b *CastBridge) State() CastState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// DeviceName returns the name of the receiver being connected to or
// cast to, or "".
func (b *CastBridge) DeviceName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CastDisconnected || b.session == nil {
		return ""
	}
	return b.session.Name()
}

func (b *CastBridge) Close() {
	b.cancel()
	b.disconnect()
}

func (b *CastBridge) OnSessionStarting(s player.CastSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CastDisconnected {
		b.state = CastConnecting
		b.session = s
	}
}

func (b *CastBridge) OnSessionStarted(s player.CastSession, sessionID string) {
	log.Printf("cast session %s started on %s", sessionID, s.Name())
	b.connect(s)
	b.store.Events().Emit(ShowNotice{Text: "Connected to Cast Device"})
}

func (b *CastBridge) OnSessionStartFailed(s player.CastSession, err error) {
	log.WithError(err).Warnf("failed to start cast session on %s", s.Name())
	b.disconnect()
}

func (b *CastBridge) OnSessionEnding(s player.CastSession) {
	log.Debugf("cast session on %s ending", s.Name())
}

func (b *CastBridge) OnSessionEnded(s player.CastSession, err error) {
	if err != nil {
		log.WithError(err).Warnf("cast session on %s ended", s.Name())
	}
	if b.disconnect() {
		b.store.Events().Emit(ShowNotice{Text: "Disconnected"})
	}
}

func (b *CastBridge) OnSessionResuming(s player.CastSession, sessionID string) {
	log.Debugf("resuming cast session %s on %s", sessionID, s.Name())
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CastDisconnected {
		b.state = CastConnecting
		b.session = s
	}
}

func (b *CastBridge) OnSessionResumed(s player.CastSession, wasSuspended bool) {
	log.Printf("cast session on %s resumed (was suspended: %t)", s.Name(), wasSuspended)
	b.connect(s)
}

func (b *CastBridge) OnSessionResumeFailed(s player.CastSession, err error) {
	log.WithError(err).Warnf("failed to resume cast session on %s", s.Name())
	b.disconnect()
}

// A suspended session stays connected; the current item is loaded
// again once it resumes.
func (b *CastBridge) OnSessionSuspended(s player.CastSession, reason string) {
	log.Printf("cast session on %s suspended: %s", s.Name(), reason)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suspended = true
	b.lastMirroredID = ""
	b.pending = nil
}

func (b *CastBridge) connect(s player.CastSession) {
	b.mu.Lock()
	b.state = CastConnected
	b.session = s
	b.suspended = false
	b.lastMirroredID = ""
	b.lastRefusedID = ""
	subscribed := b.unsubscribe != nil
	if !subscribed {
		b.unsubscribe = b.store.Subscribe(b.mirror)
	}
	b.mu.Unlock()

	if subscribed {
		// the subscription will not redeliver an unchanged snapshot
		b.mirror(b.store.State())
	}
}

// returns whether the bridge was connected
func (b *CastBridge) disconnect() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	wasConnected := b.state == CastConnected
	b.state = CastDisconnected
	b.session = nil
	b.suspended = false
	b.lastMirroredID = ""
	b.lastRefusedID = ""
	b.pending = nil
	return wasConnected
}

func (b *CastBridge) mirror(st UiState) {
	b.mu.Lock()
	if b.state != CastConnected || b.session == nil || b.suspended {
		b.mu.Unlock()
		return
	}
	id := st.CurrentID()
	if id == "" || id == b.lastMirroredID {
		b.mu.Unlock()
		return
	}
	entry := b.entryFor(st)
	if !entry.IsRemotelyFetchable() {
		refused := b.lastRefusedID != id
		b.lastRefusedID = id
		b.mu.Unlock()
		if refused {
			log.Warnf("not casting %s: %s is not reachable by the receiver", id, entry.SourceURI)
			b.store.Events().Emit(ShowNotice{Text: "Cannot cast local files without a server"})
		}
		return
	}
	b.lastMirroredID = id
	b.pending = &castLoad{
		session:    b.session,
		media:      castMediaFor(entry),
		positionMs: st.PositionMs,
	}
	b.mu.Unlock()

	b.conn.Pause()
	select {
	case b.loadWake <- struct{}{}:
	default:
	}
}

// the full entry for the current item, preferring the engine's
func (b *CastBridge) entryFor(st UiState) mediaprovider.PlaylistEntry {
	id := st.CurrentID()
	if item, ok := b.conn.CurrentItem.Get().Get(); ok && item.ID == id {
		return item
	}
	if item, ok := lo.Find(st.Playlist, func(p PlaylistItem) bool { return p.ID == id }); ok {
		return item.PlaylistEntry
	}
	return mediaprovider.PlaylistEntry{ID: id, Title: st.Title, Artist: st.Artist}
}

func (b *CastBridge) loader() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.loadWake:
			b.mu.Lock()
			l := b.pending
			b.pending = nil
			b.mu.Unlock()
			if l != nil {
				b.load(l)
			}
		}
	}
}

func (b *CastBridge) load(l *castLoad) {
	ctx, cancel := context.WithTimeout(b.ctx, castLoadTimeout)
	defer cancel()
	if err := l.session.Load(ctx, l.media, true, l.positionMs); err != nil {
		log.WithError(err).Warnf("failed to load %s on %s", l.media.ID, l.session.Name())
		b.store.Events().Emit(ShowNotice{Text: "Could not play on " + l.session.Name()})
		return
	}
	log.Debugf("loaded %s on %s", l.media.ID, l.session.Name())
}

func castMediaFor(entry mediaprovider.PlaylistEntry) player.CastMedia {
	return player.CastMedia{
		ID:          entry.ID,
		URL:         entry.SourceURI,
		Title:       entry.Title,
		Artist:      entry.Artist,
		ArtworkURL:  entry.ArtworkURI,
		ContentType: contentTypeFor(entry.SourceURI),
		Duration:    entry.Duration(),
		Live:        entry.IsStream(),
	}
}

func contentTypeFor(uri string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil {
		p = u.Path
	}
	if t := mime.TypeByExtension(path.Ext(p)); strings.HasPrefix(t, "audio/") {
		return t
	}
	return defaultContentType
}
