package player

import (
	"context"
	"time"
)

// CastMedia describes an item to be loaded onto a cast receiver.
type CastMedia struct {
	ID          string
	URL         string
	Title       string
	Artist      string
	ArtworkURL  string
	ContentType string
	Duration    time.Duration
	// Live streams are loaded as non-seekable.
	Live bool
}

// CastSession is a connection to an external receiver device
// (the secondary output).
type CastSession interface {
	// Human readable name of the receiver device.
	Name() string
	// Load replaces whatever the receiver is playing with media,
	// starting at startPositionMs.
	Load(ctx context.Context, media CastMedia, autoplay bool, startPositionMs int64) error
}

// SessionListener receives cast session lifecycle callbacks.
// Callbacks are invoked from the session's own goroutines.
type SessionListener interface {
	OnSessionStarting(s CastSession)
	OnSessionStarted(s CastSession, sessionID string)
	OnSessionStartFailed(s CastSession, err error)
	OnSessionEnding(s CastSession)
	OnSessionEnded(s CastSession, err error)
	OnSessionResuming(s CastSession, sessionID string)
	OnSessionResumed(s CastSession, wasSuspended bool)
	OnSessionResumeFailed(s CastSession, err error)
	OnSessionSuspended(s CastSession, reason string)
}
