package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"github.com/supersonic-app/go-subsonic/subsonic"
	"github.com/zalando/go-keyring"
)

var ErrNoServers = errors.New("no servers set up")

// ServerManager holds the connection to the Subsonic server
// used as the remote favorites backend.
type ServerManager struct {
	ServerID uuid.UUID
	Server   *subsonic.Client

	appName  string
	config   *Config
	password func(service, user string) (string, error)

	onServerConnected []func()
}

func NewServerManager(appName string, config *Config) *ServerManager {
	return &ServerManager{appName: appName, config: config, password: keyring.Get}
}

func (s *ServerManager) ConnectToServer(conf *ServerConfig, password string) error {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.RetryWaitMax = 2 * time.Second
	httpClient.Logger = nil
	cli := &subsonic.Client{
		Client:     httpClient.StandardClient(),
		BaseUrl:    conf.Hostname,
		User:       conf.Username,
		ClientName: s.appName,
	}
	if err := cli.Authenticate(password); err != nil {
		return fmt.Errorf("authenticating with %s: %w", conf.Hostname, err)
	}
	s.Server = cli
	s.ServerID = conf.ID
	log.Printf("connected to server %s as %s", conf.Hostname, conf.Username)
	for _, cb := range s.onServerConnected {
		cb()
	}
	return nil
}

// ConnectToDefaultServer connects to the configured default server,
// reading its password from the OS keyring.
func (s *ServerManager) ConnectToDefaultServer() error {
	conf := s.config.DefaultServer()
	if conf == nil {
		return ErrNoServers
	}
	pass, err := s.password(s.appName, conf.ID.String())
	if err != nil {
		return fmt.Errorf("error reading keyring credentials: %w", err)
	}
	return s.ConnectToServer(conf, pass)
}

func (s *ServerManager) OnServerConnected(cb func()) {
	s.onServerConnected = append(s.onServerConnected, cb)
}

func (s *ServerManager) GetServerPassword(server *ServerConfig) (string, error) {
	return keyring.Get(s.appName, server.ID.String())
}

func (s *ServerManager) SetServerPassword(server *ServerConfig, password string) error {
	return keyring.Set(s.appName, server.ID.String(), password)
}
