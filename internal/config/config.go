package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	ErrNicknameRequired = errors.New("config: nickname required")
	ErrNoServers        = errors.New("config: at least one server required")
	ErrInvalidServer    = errors.New("config: invalid server")
)

// Config is the application configuration. The engine itself receives only
// already-validated per-server options derived from this.
type Config struct {
	Nickname string                  `toml:"nickname"`
	Username string                  `toml:"username"`
	Realname string                  `toml:"realname"`
	Status   StatusConfig            `toml:"status"`
	Servers  map[string]ServerConfig `toml:"servers"`
}

// StatusConfig controls the optional HTTP status/metrics endpoint. An empty
// address disables it.
type StatusConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type ServerConfig struct {
	Address     string   `toml:"address"`
	Port        int      `toml:"port"`
	TLS         bool     `toml:"tls"`
	TLSInsecure bool     `toml:"tls_insecure"`
	Password    string   `toml:"password"`
	Nickname    string   `toml:"nickname"`
	Channels    []string `toml:"channels"`
}

// HostPort joins the configured address and port.
func (s ServerConfig) HostPort() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Username == "" {
		cfg.Username = cfg.Nickname
	}
	if cfg.Realname == "" {
		cfg.Realname = cfg.Nickname
	}
	for name, server := range cfg.Servers {
		if server.Port == 0 {
			if server.TLS {
				server.Port = 6697
			} else {
				server.Port = 6667
			}
		}
		if server.Nickname == "" {
			server.Nickname = cfg.Nickname
		}
		cfg.Servers[name] = server
	}
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Nickname) == "" {
		return ErrNicknameRequired
	}
	if len(cfg.Servers) == 0 {
		return ErrNoServers
	}
	for name, server := range cfg.Servers {
		if strings.TrimSpace(server.Address) == "" {
			return fmt.Errorf("%w: %s missing address", ErrInvalidServer, name)
		}
		if server.Port < 1 || server.Port > 65535 {
			return fmt.Errorf("%w: %s port out of range", ErrInvalidServer, name)
		}
	}
	return nil
}
