package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/20after4/configdir"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/supersonic-app/nowplaying/backend/favorites"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
	"github.com/supersonic-app/nowplaying/backend/player"
	"github.com/supersonic-app/nowplaying/backend/player/dlna"
	"github.com/supersonic-app/nowplaying/backend/player/mpv"
	"github.com/supersonic-app/nowplaying/backend/util"
)

const configFile = "config.toml"

type StartupOptions struct {
	AppName     string
	DisplayName string
	VersionTag  string
	// Overrides the config file location.
	ConfigPath string
	// Overrides the configured log level.
	LogLevel string
	// Log to a file in the cache dir instead of stderr.
	LogFile string
}

type App struct {
	Config        *Config
	ServerManager *ServerManager
	Connection    *PlaybackConnection
	Store         *PlayerStateStore
	CastBridge    *CastBridge
	Favorites     favorites.Store
	MPRISHandler  *MPRISHandler

	// UI callback to be set in main
	OnExit func()

	appName          string
	appVersionTag    string
	configDir        string
	cacheDir         string
	configPath       string
	logLevelOverride string
	logFile          *os.File

	isFirstLaunch bool // set by config file reader
	bgrndCtx      context.Context
	cancel        context.CancelFunc

	castLock sync.Mutex
	renderer *dlna.Renderer
}

func (a *App) VersionTag() string {
	return a.appVersionTag
}

func StartupApp(opts StartupOptions) (*App, error) {
	confDir := configdir.LocalConfig(opts.AppName)
	cacheDir := configdir.LocalCache(opts.AppName)
	// ensure config and cache dirs exist
	if err := configdir.MakePath(confDir); err != nil {
		return nil, fmt.Errorf("creating config dir: %w", err)
	}
	if err := configdir.MakePath(cacheDir); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	a := &App{
		appName:          opts.AppName,
		appVersionTag:    opts.VersionTag,
		configDir:        confDir,
		cacheDir:         cacheDir,
		configPath:       filepath.Join(confDir, configFile),
		logLevelOverride: opts.LogLevel,
	}
	if opts.ConfigPath != "" {
		a.configPath = opts.ConfigPath
	}
	a.bgrndCtx, a.cancel = context.WithCancel(context.Background())
	a.readConfig()
	a.setupLogging(opts.LogFile)

	log.Printf("Starting %s %s...", opts.AppName, opts.VersionTag)
	log.Printf("Using config file: %s", a.configPath)
	log.Printf("Using cache dir: %s", cacheDir)

	if a.isFirstLaunch {
		a.SaveConfigFile()
	}
	a.startConfigWatcher()

	a.ServerManager = NewServerManager(opts.AppName, a.Config)
	a.Favorites = a.setupFavorites()

	pc := a.Config.Playback
	bind := mpv.Bind(mpv.Options{
		ClientName:  opts.DisplayName,
		AudioDevice: pc.AudioDeviceName,
		MaxCacheMB:  clamp(pc.InMemoryCacheSizeMB, 10, 500),
	})
	a.Connection = NewPlaybackConnection(a.bgrndCtx,
		bindWithTimeout(bind, time.Duration(clamp(pc.EngineBindTimeoutSec, 1, 120))*time.Second))

	a.Store = NewPlayerStateStore(a.bgrndCtx, a.Connection, a.Favorites,
		NewWaveforms(a.Config.Waveform, cacheDir),
		StoreOptions{
			PositionPollInterval: a.Config.PositionPollInterval(),
			EventQueueSize:       a.Config.Application.EventQueueSize,
		})
	a.CastBridge = NewCastBridge(a.bgrndCtx, a.Store, a.Connection)

	// OS media center integration
	if a.Config.MPRIS.Enabled && runtime.GOOS == "linux" {
		a.setupMPRIS(opts.DisplayName)
	}

	return a, nil
}

func (a *App) IsFirstLaunch() bool {
	return a.isFirstLaunch
}

func (a *App) readConfig() {
	var cfgExists bool
	if _, err := os.Stat(a.configPath); err == nil {
		cfgExists = true
	}
	a.isFirstLaunch = !cfgExists
	cfg, err := ReadConfigFile(a.configPath, a.appVersionTag)
	if err != nil {
		if cfgExists {
			log.Printf("Error reading app config file: %v", err)
		}
		cfg = DefaultConfig(a.appVersionTag)
		if cfgExists {
			backupConfigFile(a.configPath)
		}
	}
	a.Config = cfg
}

// backupConfigFile copies a config file that failed to parse to <path>.bak.
func backupConfigFile(configPath string) error {
	backupCfgName := fmt.Sprintf("%s.bak", configPath)
	log.Printf("Config file may be malformed: copying to %s", backupCfgName)
	if err := util.CopyFile(configPath, backupCfgName); err != nil {
		log.WithError(err).Warnf("failed to back up config file to %s", backupCfgName)
		return err
	}
	return nil
}

func (a *App) setupLogging(logFile string) {
	applyLogLevel(a.Config.Application.LogLevel, a.logLevelOverride)
	if logFile == "" {
		return
	}
	f, err := os.OpenFile(filepath.Join(a.cacheDir, logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.WithError(err).Warn("failed to open log file, logging to stderr")
		return
	}
	log.SetOutput(f)
	log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	a.logFile = f
}

func applyLogLevel(configured, override string) {
	level := configured
	if override != "" {
		level = override
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("invalid log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// re-applies the log level when the config file is edited
func (a *App) startConfigWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to watch config file")
		return
	}
	if err := watcher.Add(filepath.Dir(a.configPath)); err != nil {
		log.WithError(err).Warn("failed to watch config file")
		watcher.Close()
		return
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-a.bgrndCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(a.configPath) ||
					event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := ReadConfigFile(a.configPath, a.appVersionTag)
				if err != nil {
					log.WithError(err).Warn("ignoring unreadable config file change")
					continue
				}
				applyLogLevel(cfg.Application.LogLevel, a.logLevelOverride)
				log.Info("config file changed; some settings take effect on restart")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config watcher error")
			}
		}
	}()
}

func (a *App) setupFavorites() favorites.Store {
	conf := a.Config.Favorites
	switch conf.Backend {
	case FavoritesSubsonic:
		if err := a.ServerManager.ConnectToDefaultServer(); err != nil {
			log.WithError(err).Warn("favorites server unavailable, keeping favorites in memory")
			return favorites.NewMemoryStore()
		}
		store := favorites.NewSubsonicStore(a.ServerManager.Server)
		go func() {
			if err := store.Prime(); err != nil {
				log.WithError(err).Warn("failed to fetch starred songs")
			}
		}()
		return store
	case FavoritesMemory:
		return favorites.NewMemoryStore()
	default:
		path := conf.File
		if path == "" {
			path = "favorites.json"
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.configDir, path)
		}
		store, err := favorites.OpenFileStore(afero.NewOsFs(), path)
		if err != nil {
			log.WithError(err).Warnf("failed to open favorites file %s, keeping favorites in memory", path)
			return favorites.NewMemoryStore()
		}
		if err := store.WatchFile(a.bgrndCtx); err != nil {
			log.WithError(err).Warn("favorites file will not be reloaded on external changes")
		}
		return store
	}
}

func (a *App) setupMPRIS(mprisAppName string) {
	a.MPRISHandler = NewMPRISHandler(mprisAppName, a.Store)
	a.MPRISHandler.OnQuit = func() error {
		if a.OnExit == nil {
			return errors.New("no quit handler registered")
		}
		go func() {
			time.Sleep(10 * time.Millisecond)
			a.OnExit()
		}()
		return nil
	}
	a.MPRISHandler.Start()
}

// RadioEntries returns the configured radio stations as playlist entries.
func (a *App) RadioEntries() []mediaprovider.PlaylistEntry {
	stations := a.Config.RadioStations()
	entries := make([]mediaprovider.PlaylistEntry, 0, len(stations))
	for _, s := range stations {
		entries = append(entries, s.Entry())
	}
	return entries
}

// ConnectCastDevice connects the cast bridge to the named media renderer,
// replacing any current cast session.
func (a *App) ConnectCastDevice(ctx context.Context, name string) error {
	dev, err := dlna.FindMediaRenderer(ctx, name, clamp(a.Config.Cast.DiscoveryTimeoutSec, 1, 60))
	if err != nil {
		return err
	}
	a.DisconnectCast()

	r, err := dlna.Connect(ctx, dev, a.CastBridge)
	if err != nil {
		return err
	}
	if secs := a.Config.Cast.MonitorIntervalSec; secs > 0 {
		r.Monitor(a.bgrndCtx, time.Duration(secs)*time.Second)
	}
	a.castLock.Lock()
	a.renderer = r
	a.castLock.Unlock()
	return nil
}

func (a *App) DisconnectCast() {
	a.castLock.Lock()
	r := a.renderer
	a.renderer = nil
	a.castLock.Unlock()
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Disconnect(ctx); err != nil {
		log.WithError(err).Warnf("error disconnecting from %s", r.Name())
	}
}

func (a *App) Shutdown() {
	if a.MPRISHandler != nil {
		a.MPRISHandler.Shutdown()
	}
	a.DisconnectCast()
	a.CastBridge.Close()
	a.Store.Close()
	a.Connection.Close()
	a.cancel()
	if a.logFile != nil {
		log.SetOutput(os.Stderr)
		a.logFile.Close()
	}
}

func (a *App) SaveConfigFile() {
	if err := a.Config.WriteConfigFile(a.configPath); err != nil {
		log.WithError(err).Warn("failed to write config file")
	}
}

// bindWithTimeout fails binding if bind does not complete within d.
func bindWithTimeout(bind player.Binder, d time.Duration) player.Binder {
	return func(ctx context.Context) (player.Engine, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			eng player.Engine
			err error
		}
		done := make(chan result, 1)
		go func() {
			eng, err := bind(ctx)
			done <- result{eng, err}
		}()
		select {
		case r := <-done:
			return r.eng, r.err
		case <-ctx.Done():
			go func() {
				// release an engine that bound too late
				if r := <-done; r.eng != nil {
					r.eng.Close()
				}
			}()
			return nil, fmt.Errorf("binding playback engine: %w", ctx.Err())
		}
	}
}

func clamp(i, min, max int) int {
	if i < min {
		i = min
	} else if i > max {
		i = max
	}
	return i
}
