package mediaprovider

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/dhowden/tag"
	log "github.com/sirupsen/logrus"
)

// EntryForFile builds a playlist entry for a file on local storage,
// reading its title and artist from the file's tags when present.
func EntryForFile(filePath string) (PlaylistEntry, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return PlaylistEntry{}, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return PlaylistEntry{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	entry := PlaylistEntry{
		ID:        localID(abs),
		Title:     filepath.Base(abs),
		SourceURI: abs,
		Kind:      KindTrack,
	}
	meta, err := tag.ReadFrom(f)
	if err != nil {
		log.WithField("file", abs).Debugf("no tags: %v", err)
		return entry, nil
	}
	if t := meta.Title(); t != "" {
		entry.Title = t
	}
	entry.Artist = meta.Artist()
	return entry, nil
}

// EntryForURL builds a playlist entry for a network resource.
// Sources with no recognizable file name are assumed to be live streams.
func EntryForURL(rawURL string) (PlaylistEntry, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PlaylistEntry{}, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	kind := KindTrack
	title := path.Base(u.Path)
	if path.Ext(u.Path) == "" {
		kind = KindStream
		title = u.Host
	}
	return PlaylistEntry{
		ID:        localID(rawURL),
		Title:     title,
		Artist:    u.Host,
		SourceURI: rawURL,
		IsOnline:  true,
		Kind:      kind,
	}, nil
}

// EntriesForArgs resolves each argument as either a URL or a local file,
// skipping (and logging) those that cannot be read.
func EntriesForArgs(args []string) []PlaylistEntry {
	entries := make([]PlaylistEntry, 0, len(args))
	for _, a := range args {
		var e PlaylistEntry
		var err error
		if IsHTTPURI(a) {
			e, err = EntryForURL(a)
		} else {
			e, err = EntryForFile(a)
		}
		if err != nil {
			log.WithError(err).Warnf("skipping %s", a)
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func localID(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}
