package dlna

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huin/goupnp/dcps/av1"
	log "github.com/sirupsen/logrus"
	"github.com/supersonic-app/nowplaying/backend/player"
)

const (
	// DLNA device initialization timing constants
	maxSeekRetries        = 5
	seekRetryInitialDelay = 400 * time.Millisecond
	seekRetryMaxDelay     = 2 * time.Second
	connectTimeout        = 5 * time.Second
	requestTimeout        = 10 * time.Second
)

var _ player.CastSession = (*Renderer)(nil)

// avTransport is the subset of the AVTransport service used by Renderer.
type avTransport interface {
	GetTransportInfoCtx(ctx context.Context, InstanceID uint32) (CurrentTransportState string, CurrentTransportStatus string, CurrentSpeed string, err error)
	SetAVTransportURICtx(ctx context.Context, InstanceID uint32, CurrentURI string, CurrentURIMetaData string) error
	PlayCtx(ctx context.Context, InstanceID uint32, Speed string) error
	PauseCtx(ctx context.Context, InstanceID uint32) error
	StopCtx(ctx context.Context, InstanceID uint32) error
	SeekCtx(ctx context.Context, InstanceID uint32, Unit string, Target string) error
}

var _ avTransport = (*av1.AVTransport1)(nil)

// Renderer is a cast session with a DLNA media renderer.
// All requests to the device are serialized.
type Renderer struct {
	name     string
	listener player.SessionListener
	avt      avTransport

	reqLock sync.Mutex

	mu        sync.Mutex
	sessionID string
	suspended bool
	closed    bool
	cancelMon context.CancelFunc
}

// Connect opens a session with device, reporting the session lifecycle to listener.
func Connect(ctx context.Context, device *MediaRendererDevice, listener player.SessionListener) (*Renderer, error) {
	r := &Renderer{name: device.FriendlyName, listener: listener}
	listener.OnSessionStarting(r)

	avt, err := device.NewAVTransportClient()
	if err != nil {
		listener.OnSessionStartFailed(r, err)
		return nil, err
	}
	return r, r.start(ctx, avt)
}

func (r *Renderer) start(ctx context.Context, avt avTransport) error {
	r.avt = avt
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := r.ping(pingCtx); err != nil {
		err = fmt.Errorf("failed to connect to %s: %w", r.name, err)
		r.listener.OnSessionStartFailed(r, err)
		return err
	}
	r.mu.Lock()
	r.sessionID = uuid.NewString()
	id := r.sessionID
	r.mu.Unlock()
	log.Infof("connected to media renderer %s", r.name)
	r.listener.OnSessionStarted(r, id)
	return nil
}

func (r *Renderer) Name() string {
	return r.name
}

func (r *Renderer) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Load sets the renderer's transport URI to media and optionally
// seeks to the start position and starts playback.
func (r *Renderer) Load(ctx context.Context, media player.CastMedia, autoplay bool, startPositionMs int64) error {
	if media.URL == "" {
		return errors.New("cast media has no URL")
	}
	r.reqLock.Lock()
	defer r.reqLock.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := r.avt.SetAVTransportURICtx(reqCtx, 0, media.URL, buildDIDLMetadata(media)); err != nil {
		return fmt.Errorf("set transport uri: %w", err)
	}
	if !autoplay {
		return nil
	}
	if err := r.avt.PlayCtx(reqCtx, 0, "1"); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	if startPositionMs > 0 && !media.Live {
		if err := r.sendSeekCmd(ctx, int(startPositionMs/1000)); err != nil {
			log.WithError(err).Warnf("failed to seek %s to start position", r.name)
		}
	}
	return nil
}

// Monitor polls the renderer at interval until ctx is cancelled or the
// session is disconnected, reporting suspension when the device stops
// responding and resumption when it answers again.
func (r *Renderer) Monitor(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.cancelMon != nil {
		r.cancelMon()
	}
	r.cancelMon = cancel
	r.mu.Unlock()

	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				r.checkAlive(ctx)
			}
		}
	}()
}

func (r *Renderer) checkAlive(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := r.ping(pingCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	wasSuspended := r.suspended
	r.suspended = err != nil
	id := r.sessionID
	r.mu.Unlock()

	switch {
	case err != nil && !wasSuspended:
		r.listener.OnSessionSuspended(r, err.Error())
	case err == nil && wasSuspended:
		r.listener.OnSessionResuming(r, id)
		r.listener.OnSessionResumed(r, true)
	}
}

// Disconnect stops playback on the renderer and ends the session.
func (r *Renderer) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.cancelMon != nil {
		r.cancelMon()
	}
	r.mu.Unlock()

	r.listener.OnSessionEnding(r)
	r.reqLock.Lock()
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	err := r.avt.StopCtx(reqCtx, 0)
	cancel()
	r.reqLock.Unlock()
	r.listener.OnSessionEnded(r, err)
	return err
}

func (r *Renderer) ping(ctx context.Context) error {
	r.reqLock.Lock()
	defer r.reqLock.Unlock()
	_, _, _, err := r.avt.GetTransportInfoCtx(ctx, 0)
	return err
}

// must be called with reqLock held
func (r *Renderer) sendSeekCmd(ctx context.Context, secs int) error {
	// Retry seeking with exponential backoff to handle devices that aren't
	// immediately ready after playback starts
	delay := seekRetryInitialDelay
	var lastErr error

	for attempt := 0; attempt < maxSeekRetries; attempt++ {
		seekCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := r.avt.SeekCtx(seekCtx, 0, "REL_TIME", formatTime(secs))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Debugf("DLNA seek attempt %d/%d failed: %v, retrying in %v",
			attempt+1, maxSeekRetries, err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = nextSeekDelay(delay)
	}
	return fmt.Errorf("failed to seek after %d attempts: %w", maxSeekRetries, lastErr)
}

// Exponential backoff, capped at seekRetryMaxDelay
func nextSeekDelay(d time.Duration) time.Duration {
	d *= 2
	if d > seekRetryMaxDelay {
		d = seekRetryMaxDelay
	}
	return d
}

func formatTime(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

func buildDIDLMetadata(media player.CastMedia) string {
	if media.URL == "" {
		return ""
	}
	contentType := media.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	var b strings.Builder
	b.WriteString(`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">`)
	b.WriteString("\n" + `<item id="0" parentID="-1" restricted="1">` + "\n")
	fmt.Fprintf(&b, "<dc:title>%s</dc:title>\n", escape(media.Title))
	if media.Artist != "" {
		fmt.Fprintf(&b, "<upnp:artist>%s</upnp:artist>\n", escape(media.Artist))
	}
	if media.ArtworkURL != "" {
		fmt.Fprintf(&b, "<upnp:albumArtURI>%s</upnp:albumArtURI>\n", escape(media.ArtworkURL))
	}
	if media.Duration > 0 {
		fmt.Fprintf(&b, `<res protocolInfo="http-get:*:%s:*" duration="%s.000">%s</res>`+"\n",
			contentType, formatTime(int(media.Duration.Seconds())), escape(media.URL))
	} else {
		fmt.Fprintf(&b, `<res protocolInfo="http-get:*:%s:*">%s</res>`+"\n", contentType, escape(media.URL))
	}
	class := "object.item.audioItem.musicTrack"
	if media.Live {
		class = "object.item.audioItem.audioBroadcast"
	}
	fmt.Fprintf(&b, "<upnp:class>%s</upnp:class>\n</item>\n</DIDL-Lite>", class)
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
