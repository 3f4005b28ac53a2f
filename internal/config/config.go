package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/simon/ssht/internal/ipc"
	"github.com/simon/ssht/internal/remote"
)

const (
	DefaultSocketDir = "/tmp/ssht"
	DefaultSession   = "main"
	DefaultLogLevel  = "info"
)

type HostConfig struct {
	Host   string `yaml:"host"`
	User   string `yaml:"user"`
	Port   int    `yaml:"port"`
	SSHKey string `yaml:"ssh_key"`
}

type Config struct {
	SocketDir      string                `yaml:"socket_dir"`
	Session        string                `yaml:"session"`
	MaxMessageSize int                   `yaml:"max_message_size"`
	LogLevel       string                `yaml:"log_level"`
	KnownHosts     string                `yaml:"known_hosts"`
	Hosts          map[string]HostConfig `yaml:"hosts"`
}

// Default is the configuration used when no file exists.
func Default() *Config {
	return &Config{
		SocketDir:      DefaultSocketDir,
		Session:        DefaultSession,
		MaxMessageSize: ipc.DefaultMaxMessageSize,
		LogLevel:       DefaultLogLevel,
		KnownHosts:     remote.KnownHostsStrict,
	}
}

// Path returns $XDG_CONFIG_HOME/ssht/config.yaml, falling back to
// ~/.config/ssht/config.yaml.
func Path() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "ssht", "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ssht", "config.yaml"), nil
}

// Load reads the config from the default path.
// Returns the defaults if the file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, filling unset fields with defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.SocketDir == "" {
		cfg.SocketDir = DefaultSocketDir
	}
	if cfg.Session == "" {
		cfg.Session = DefaultSession
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = ipc.DefaultMaxMessageSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.KnownHosts == "" {
		cfg.KnownHosts = remote.KnownHostsStrict
	}

	home, _ := os.UserHomeDir()
	for name, h := range cfg.Hosts {
		// Expand ~ in ssh_key
		if home != "" && strings.HasPrefix(h.SSHKey, "~") {
			h.SSHKey = filepath.Join(home, h.SSHKey[1:])
		}
		cfg.Hosts[name] = h
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize)
	}
	switch c.KnownHosts {
	case remote.KnownHostsStrict, remote.KnownHostsAcceptNew, remote.KnownHostsOff:
	default:
		return fmt.Errorf("known_hosts must be one of strict, accept-new, off; got %q", c.KnownHosts)
	}
	for name, h := range c.Hosts {
		if h.Host == "" {
			return fmt.Errorf("hosts.%s: host is required", name)
		}
	}
	return nil
}

// Target is a resolved ssh destination.
type Target struct {
	Nickname    string
	Destination string
	Port        int
	SSHKey      string
}

// Resolve maps the command-line host argument to an ssh destination. A
// configured nickname wins; anything else is passed to ssh verbatim.
func (c *Config) Resolve(arg string) Target {
	h, ok := c.Hosts[arg]
	if !ok {
		return Target{Destination: arg}
	}
	dest := h.Host
	if h.User != "" {
		dest = h.User + "@" + h.Host
	}
	return Target{Nickname: arg, Destination: dest, Port: h.Port, SSHKey: h.SSHKey}
}

// SSHOptions builds remote.Options for t with the given control socket.
func (c *Config) SSHOptions(t Target, controlPath string) remote.Options {
	return remote.Options{
		Destination: t.Destination,
		Port:        t.Port,
		SSHKey:      t.SSHKey,
		KnownHosts:  c.KnownHosts,
		ControlPath: controlPath,
	}
}
