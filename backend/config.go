package backend

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

type FavoritesBackend string

const (
	FavoritesFile     FavoritesBackend = "file"
	FavoritesSubsonic FavoritesBackend = "subsonic"
	FavoritesMemory   FavoritesBackend = "memory"
)

type ServerConfig struct {
	ID       uuid.UUID
	Nickname string
	Hostname string
	Username string
	Default  bool
}

type AppConfig struct {
	LastLaunchedVersion string
	LogLevel            string
	EventQueueSize      int
}

type PlaybackConfig struct {
	PositionPollIntervalMs int
	AudioDeviceName        string
	InMemoryCacheSizeMB    int
	EngineBindTimeoutSec   int
	SeekStepSec            int
}

type WaveformConfig struct {
	Bars             int
	DecodeLocalFiles bool
	CacheSize        int
}

type FavoritesConfig struct {
	Backend FavoritesBackend
	// Path of the favorites file, relative to the config dir unless absolute.
	File string
}

type CastConfig struct {
	DiscoveryTimeoutSec int
	// Name of a DLNA renderer to connect to at startup.
	DefaultDevice      string
	MonitorIntervalSec int
}

type MPRISConfig struct {
	Enabled bool
}

type RadioStationConfig struct {
	ID         string
	Name       string
	StreamURL  string
	ArtworkURL string
}

type Config struct {
	Application AppConfig
	Playback    PlaybackConfig
	Waveform    WaveformConfig
	Favorites   FavoritesConfig
	Servers     []*ServerConfig
	Cast        CastConfig
	MPRIS       MPRISConfig
	Radio       []RadioStationConfig
}

func DefaultConfig(appVersionTag string) *Config {
	return &Config{
		Application: AppConfig{
			LastLaunchedVersion: appVersionTag,
			LogLevel:            "info",
			EventQueueSize:      defaultEventQueueSize,
		},
		Playback: PlaybackConfig{
			PositionPollIntervalMs: 200,
			InMemoryCacheSizeMB:    30,
			EngineBindTimeoutSec:   10,
			SeekStepSec:            10,
		},
		Waveform: WaveformConfig{
			Bars:             defaultWaveformBars,
			DecodeLocalFiles: true,
			CacheSize:        100,
		},
		Favorites: FavoritesConfig{
			Backend: FavoritesFile,
			File:    "favorites.json",
		},
		Cast: CastConfig{
			DiscoveryTimeoutSec: 5,
			MonitorIntervalSec:  10,
		},
		MPRIS: MPRISConfig{
			Enabled: true,
		},
	}
}

func (c *Config) PositionPollInterval() time.Duration {
	if c.Playback.PositionPollIntervalMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.Playback.PositionPollIntervalMs) * time.Millisecond
}

// DefaultServer returns the server marked as default,
// or the first configured server.
func (c *Config) DefaultServer() *ServerConfig {
	if s, ok := lo.Find(c.Servers, func(s *ServerConfig) bool { return s.Default }); ok {
		return s
	}
	if len(c.Servers) > 0 {
		return c.Servers[0]
	}
	return nil
}

func (c *Config) RadioStations() []mediaprovider.RadioStation {
	return lo.Map(c.Radio, func(r RadioStationConfig, _ int) mediaprovider.RadioStation {
		return mediaprovider.RadioStation(r)
	})
}

func ReadConfigFile(filepath, appVersionTag string) (*Config, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := DefaultConfig(appVersionTag)
	if err := toml.NewDecoder(f).Decode(c); err != nil {
		return nil, err
	}

	// Backfill IDs for servers added by hand to the config file
	for _, s := range c.Servers {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
	}

	return c, nil
}

var writeLock sync.Mutex

func (c *Config) WriteConfigFile(filepath string) error {
	if !writeLock.TryLock() {
		return nil // another write in progress
	}
	defer writeLock.Unlock()

	b, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, b, 0644)
}
