package mediaprovider

import (
	"strings"
	"time"
)

// Prefix used for the IDs of configured radio stations.
const RadioIDPrefix = "radio_"

// The kind of a playable item.
type MediaKind int

const (
	// A finite, seekable track.
	KindTrack MediaKind = iota
	// A live stream with no meaningful paused position (eg. internet radio).
	KindStream
)

func (k MediaKind) String() string {
	if k == KindStream {
		return "stream"
	}
	return "track"
}

// PlaylistEntry is one item of a play queue. Entries are immutable once
// constructed; copy and modify to derive a new entry.
type PlaylistEntry struct {
	ID         string
	Title      string
	Artist     string
	DurationMs int64
	SourceURI  string
	ArtworkURI string
	// Whether the entry comes from a network catalog rather than device storage.
	IsOnline bool
	Kind     MediaKind
}

func (e PlaylistEntry) IsStream() bool {
	return e.Kind == KindStream
}

// IsRemotelyFetchable reports whether a device other than this one
// could fetch the entry's source.
func (e PlaylistEntry) IsRemotelyFetchable() bool {
	return e.IsOnline || IsHTTPURI(e.SourceURI)
}

func (e PlaylistEntry) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}

func IsHTTPURI(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// RadioStation is a configured internet radio station.
type RadioStation struct {
	ID         string
	Name       string
	StreamURL  string
	ArtworkURL string
}

// Entry returns the playlist entry for the station.
func (r RadioStation) Entry() PlaylistEntry {
	return PlaylistEntry{
		ID:         RadioIDPrefix + r.ID,
		Title:      r.Name,
		Artist:     "Radio",
		SourceURI:  r.StreamURL,
		ArtworkURI: r.ArtworkURL,
		IsOnline:   true,
		Kind:       KindStream,
	}
}
