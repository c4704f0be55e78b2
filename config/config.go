// Package config loads pwapub settings.
//
// Values are layered: built-in defaults, then a YAML file, then environment
// variables. Command-line flags are applied last by the caller. The file is
// taken from --config, else $PWAPUB_CONFIG, else
// $XDG_CONFIG_HOME/pwapub/config.yaml (~/.config/pwapub/config.yaml). Only
// the default location may be absent.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfig  = "PWAPUB_CONFIG"
	EnvRelays  = "PWAPUB_RELAYS"
	EnvServers = "PWAPUB_SERVERS"
	EnvNsec    = "PWAPUB_NSEC"
)

// DefaultConnectRelay is the relay remote signers are commonly reachable on.
const DefaultConnectRelay = "wss://relay.nsecbunker.com"

type Config struct {
	// Relays receive announcements.
	Relays []string `yaml:"relays"`

	// Servers are storage servers tried in order.
	Servers []string `yaml:"servers"`

	// ConnectRelays are registered before pairing with a remote signer.
	ConnectRelays []string `yaml:"connect_relays"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	RelayTimeout     time.Duration `yaml:"relay_timeout"`
	UploadTimeout    time.Duration `yaml:"upload_timeout"`

	// KeyDir holds saved pairing keys.
	KeyDir string `yaml:"key_dir"`

	// Nsec comes from the environment only; secrets do not belong in the
	// file.
	Nsec string `yaml:"-"`
}

func Default() Config {
	return Config{
		ConnectRelays:    []string{DefaultConnectRelay},
		HandshakeTimeout: 2 * time.Minute,
		RelayTimeout:     10 * time.Second,
		UploadTimeout:    5 * time.Minute,
	}
}

// DefaultPath returns the per-user config file location, or "" when no
// home directory is known.
func DefaultPath(getenv func(string) string) string {
	if dir := getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "pwapub", "config.yaml")
	}
	home := getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "pwapub", "config.yaml")
}

// Load resolves the config file and environment. explicit is the --config
// value, possibly empty. A nil getenv uses os.Getenv.
func Load(explicit string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	path, required := explicit, true
	if path == "" {
		path = getenv(EnvConfig)
	}
	if path == "" {
		path, required = DefaultPath(getenv), false
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			if required || !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	cfg.ApplyEnv(getenv)
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides list settings and the secret key from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvRelays); v != "" {
		c.Relays = SplitList(v)
	}
	if v := getenv(EnvServers); v != "" {
		c.Servers = SplitList(v)
	}
	if v := getenv(EnvNsec); v != "" {
		c.Nsec = v
	}
}

func (c Config) Validate() error {
	switch {
	case c.HandshakeTimeout <= 0:
		return errors.New("config: handshake_timeout must be positive")
	case c.RelayTimeout <= 0:
		return errors.New("config: relay_timeout must be positive")
	case c.UploadTimeout <= 0:
		return errors.New("config: upload_timeout must be positive")
	}
	return nil
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
