package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Sahilgill24/x3Fusion/native/htlc"
)

// Chain roles select the timelock bounds profile for the escrow leg this
// deployment settles.
const (
	RoleSource      = "source"
	RoleDestination = "destination"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	ChainRole     string `toml:"ChainRole"`
	Environment   string `toml:"Environment"`
	LogLevel      string `toml:"LogLevel"`
	LogFile       string `toml:"LogFile"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.ChainRole) == "" {
		cfg.ChainRole = RoleSource
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.ChainRole)) {
	case RoleSource, RoleDestination:
		return nil
	default:
		return fmt.Errorf("config: unsupported chain role %q", cfg.ChainRole)
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// TimelockBounds maps the configured chain role to its bounds profile: the
// source leg keeps the wide standard window, the destination leg the tight
// one.
func (c *Config) TimelockBounds() htlc.Bounds {
	if c != nil && strings.ToLower(strings.TrimSpace(c.ChainRole)) == RoleDestination {
		return htlc.DestinationBounds
	}
	return htlc.StandardBounds
}

// DatabasePath returns the LevelDB directory under the data dir.
func (c *Config) DatabasePath() string {
	dataDir := "./data"
	if c != nil && strings.TrimSpace(c.DataDir) != "" {
		dataDir = c.DataDir
	}
	return filepath.Join(dataDir, "escrows")
}
