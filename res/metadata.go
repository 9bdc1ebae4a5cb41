package res

const (
	AppName       = "nowplaying"
	DisplayName   = "Now Playing"
	AppVersion    = "0.1.0"
	AppVersionTag = "v" + AppVersion
	ConfigFile    = "config.toml"
	LogFile       = "nowplaying.log"
	GithubURL     = "https://github.com/supersonic-app/nowplaying"
)
