package favorites

import (
	"context"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	log "github.com/sirupsen/logrus"
	"github.com/supersonic-app/go-subsonic/subsonic"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

var _ Store = (*SubsonicStore)(nil)

const starredCacheTTL = 5 * time.Minute

// starrer is the subset of the Subsonic API used by SubsonicStore.
type starrer interface {
	GetSong(id string) (*subsonic.Child, error)
	GetStarred2(parameters map[string]string) (*subsonic.Starred2, error)
	Star(parameters subsonic.StarParameters) error
	Unstar(parameters subsonic.StarParameters) error
}

// SubsonicStore keeps favorites as starred songs on a Subsonic server.
type SubsonicStore struct {
	client   starrer
	starred  gcache.Cache
	watchers watchers
}

func NewSubsonicStore(client *subsonic.Client) *SubsonicStore {
	return newSubsonicStore(client)
}

func newSubsonicStore(client starrer) *SubsonicStore {
	return &SubsonicStore{
		client:  client,
		starred: gcache.New(1000).LRU().Expiration(starredCacheTTL).Build(),
	}
}

// Prime fetches all starred songs so that lookups of favorites
// do not need a round trip.
func (s *SubsonicStore) Prime() error {
	fav, err := s.client.GetStarred2(map[string]string{})
	if err != nil {
		return fmt.Errorf("get starred: %w", err)
	}
	for _, song := range fav.Song {
		s.starred.Set(song.ID, true)
	}
	log.Debugf("primed %d starred songs", len(fav.Song))
	return nil
}

func (s *SubsonicStore) Watch(ctx context.Context, id string, onChange func(bool)) func() {
	w, cancel := s.watchers.add(ctx, id, onChange)
	go func() {
		starred, err := s.isStarred(id)
		if err != nil {
			log.WithError(err).Debugf("favorite lookup for %s failed", id)
		}
		w.deliver(starred)
	}()
	return cancel
}

func (s *SubsonicStore) Add(_ context.Context, entry mediaprovider.PlaylistEntry) error {
	if err := s.client.Star(subsonic.StarParameters{SongIDs: []string{entry.ID}}); err != nil {
		return fmt.Errorf("star %s: %w", entry.ID, err)
	}
	s.starred.Set(entry.ID, true)
	s.watchers.notify(entry.ID, true)
	return nil
}

func (s *SubsonicStore) Remove(_ context.Context, entry mediaprovider.PlaylistEntry) error {
	if err := s.client.Unstar(subsonic.StarParameters{SongIDs: []string{entry.ID}}); err != nil {
		return fmt.Errorf("unstar %s: %w", entry.ID, err)
	}
	s.starred.Set(entry.ID, false)
	s.watchers.notify(entry.ID, false)
	return nil
}

func (s *SubsonicStore) isStarred(id string) (bool, error) {
	if v, err := s.starred.Get(id); err == nil {
		return v.(bool), nil
	}
	song, err := s.client.GetSong(id)
	if err != nil {
		return false, err
	}
	starred := !song.Starred.IsZero()
	s.starred.Set(id, starred)
	return starred, nil
}
