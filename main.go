package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/supersonic-app/nowplaying/backend"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
	"github.com/supersonic-app/nowplaying/backend/player/dlna"
	"github.com/supersonic-app/nowplaying/res"
	"github.com/supersonic-app/nowplaying/ui/tui"
	"golang.org/x/term"
)

var (
	configPath string
	logLevel   string
	castDevice string
	headless   bool
	waitSec    int
)

var rootCmd = &cobra.Command{
	Use:           res.AppName,
	Short:         "A terminal music and radio player with DLNA casting",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var playCmd = &cobra.Command{
	Use:   "play [file|url...]",
	Short: "Play local files or stream URLs, or the configured radio stations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlayer(cmd.Context(), args)
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List DLNA media renderers on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		devs, err := dlna.DiscoverMediaRenderers(cmd.Context(), waitSec)
		if err != nil {
			return err
		}
		if len(devs) == 0 {
			fmt.Println("No media renderers found")
			return nil
		}
		for _, d := range devs {
			fmt.Printf("%s\t%s\t%s\n", d.FriendlyName, d.ModelName, d.URL)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the application version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", res.DisplayName, res.AppVersionTag)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	playCmd.Flags().StringVar(&castDevice, "cast", "", "mirror playback to the named DLNA media renderer")
	playCmd.Flags().BoolVar(&headless, "headless", false, "log playback state instead of showing the player UI")
	devicesCmd.Flags().IntVar(&waitSec, "wait", 3, "seconds to wait for devices to respond")

	rootCmd.AddCommand(playCmd, devicesCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runPlayer(ctx context.Context, args []string) error {
	useTUI := !headless && term.IsTerminal(int(os.Stdout.Fd()))
	opts := backend.StartupOptions{
		AppName:     res.AppName,
		DisplayName: res.DisplayName,
		VersionTag:  res.AppVersionTag,
		ConfigPath:  configPath,
		LogLevel:    logLevel,
	}
	if useTUI {
		// keep log output from drawing over the UI
		opts.LogFile = res.LogFile
	}
	myApp, err := backend.StartupApp(opts)
	if err != nil {
		return fmt.Errorf("fatal startup error: %w", err)
	}
	defer func() {
		log.Info("Running shutdown tasks...")
		myApp.Shutdown()
	}()

	entries := mediaprovider.EntriesForArgs(args)
	if len(args) == 0 {
		entries = myApp.RadioEntries()
	}
	if len(entries) == 0 {
		return errors.New("nothing to play")
	}
	myApp.Store.Play(entries, 0)

	if castDevice == "" {
		castDevice = myApp.Config.Cast.DefaultDevice
	}
	if castDevice != "" {
		go func() {
			if err := myApp.ConnectCastDevice(ctx, castDevice); err != nil {
				log.WithError(err).Errorf("failed to connect to %s", castDevice)
			}
		}()
	}

	if !useTUI {
		runHeadless(ctx, myApp)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	myApp.OnExit = cancel
	return tui.Run(tui.Options{
		Context:    ctx,
		Player:     myApp.Store,
		Events:     myApp.Store.Events(),
		CastStatus: castStatus(myApp.CastBridge),
		SeekStep:   time.Duration(myApp.Config.Playback.SeekStepSec) * time.Second,
	}, myApp.Store)
}

// runHeadless logs player state changes and events until ctx is done.
func runHeadless(ctx context.Context, myApp *backend.App) {
	var last backend.UiState
	unsub := myApp.Store.Subscribe(func(st backend.UiState) {
		if st.CurrentMediaID == last.CurrentMediaID && st.IsPlaying == last.IsPlaying {
			return
		}
		last = st
		log.WithFields(log.Fields{
			"title":   st.Title,
			"artist":  st.Artist,
			"playing": st.IsPlaying,
			"index":   st.CurrentIndex,
		}).Info("now playing")
	})
	defer unsub()

	events := myApp.Store.Events()
	for {
		e, err := events.Next(ctx)
		if err != nil {
			return
		}
		switch e := e.(type) {
		case backend.ShowNotice:
			log.Info(e.Text)
		case backend.ShowErrorDialog:
			log.Warnf("%s: %s", e.Title, e.Text)
		}
	}
}

func castStatus(b *backend.CastBridge) func() string {
	return func() string {
		switch b.State() {
		case backend.CastConnecting:
			return "Connecting to " + b.DeviceName() + "..."
		case backend.CastConnected:
			return "Casting to " + b.DeviceName()
		}
		return ""
	}
}
